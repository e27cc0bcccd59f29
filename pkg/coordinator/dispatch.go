package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/state"
)

// errSuspended is returned by handlers whose completion is sent later.
var errSuspended = errors.New("reply suspended")

type handler func(c *Coordinator, s *Session, cmd *protocol.Command) error

// capability describes a dispatch table entry.
type capability struct {
	run  handler
	auth bool // client must have passed password
}

var (
	genericCommands map[string]capability
	roleCommands    map[Role]map[string]capability
)

func init() {
	genericCommands = map[string]capability{
		"login":        {run: (*Coordinator).cmdLogin},
		"register":     {run: (*Coordinator).cmdRegister},
		"message_mask": {run: (*Coordinator).cmdMessageMask},
	}

	power := func(m state.PowerMode) handler {
		return func(c *Coordinator, s *Session, cmd *protocol.Command) error {
			if err := cmd.End(); err != nil {
				return err
			}
			c.changePowerMode(m, s.name)
			return nil
		}
	}

	roleCommands = map[Role]map[string]capability{
		RoleUndeclared: {},
		RoleClient: {
			"password":         {run: (*Coordinator).cmdPassword},
			"ready":            {run: (*Coordinator).cmdReady, auth: true},
			"info":             {run: (*Coordinator).cmdInfo, auth: true},
			"priority":         {run: (*Coordinator).cmdPriority, auth: true},
			"prioritydeferred": {run: (*Coordinator).cmdPriority, auth: true},
			"key":              {run: (*Coordinator).cmdKey, auth: true},
			"on":               {run: power(state.On), auth: true},
			"standby":          {run: power(state.Standby), auth: true},
			"off":              {run: power(state.HardOff), auth: true},
			"soft_off":         {run: power(state.SoftOff), auth: true},
			"log":              {run: (*Coordinator).cmdLog, auth: true},
		},
		RoleDevice: {
			"authorize":        {run: (*Coordinator).cmdAuthorize},
			"key":              {run: (*Coordinator).cmdKey},
			"info":             {run: (*Coordinator).cmdInfo},
			"on":               {run: power(state.On)},
			"priority":         {run: (*Coordinator).cmdPriority},
			"prioritydeferred": {run: (*Coordinator).cmdPriority},
			"standby":          {run: power(state.Standby)},
			"off":              {run: power(state.HardOff)},
			"soft_off":         {run: power(state.SoftOff)},
			"state":            {run: (*Coordinator).cmdState},
			"log":              {run: (*Coordinator).cmdLog},
		},
	}
}

// lookup finds the handler for cmd in the session's capability table.
func lookup(s *Session, name string) (capability, error) {
	if cp, ok := genericCommands[name]; ok {
		return cp, nil
	}
	if cp, ok := roleCommands[s.role][name]; ok {
		if cp.auth && !s.authenticated {
			return capability{}, protocol.Violation("%s: not authenticated", name)
		}
		return cp, nil
	}
	for role, table := range roleCommands {
		if _, ok := table[name]; ok && role != s.role {
			return capability{}, protocol.Violation("%s: not allowed for %s session", name, s.role)
		}
	}
	return capability{}, protocol.Violation("unknown command %q", name)
}

// execute runs one command and sends its completion unless suspended.
func (c *Coordinator) execute(s *Session, line string) {
	cmd, err := protocol.Parse(line)
	if err == nil {
		var cp capability
		cp, err = lookup(s, cmd.Name)
		if err == nil {
			err = cp.run(c, s, cmd)
		}
	}

	if errors.Is(err, errSuspended) {
		s.busy = true
		return
	}
	c.reply(s, err)
}

// complete finishes a suspended command and resumes queued ones.
func (c *Coordinator) complete(s *Session, err error) {
	if s.closed {
		return
	}
	s.busy = false
	c.reply(s, err)
	for !s.busy && len(s.backlog) > 0 && !s.closed {
		line := s.backlog[0]
		s.backlog = s.backlog[1:]
		c.execute(s, line)
	}
}

func (c *Coordinator) reply(s *Session, err error) {
	if err == nil {
		c.send(s, protocol.OK(protocol.CodeOK))
		return
	}
	pe := protocol.AsError(err)
	log.Debug().
		Int("session", s.id).
		Str("name", s.label()).
		Int("code", pe.Code).
		Str("error", pe.Text).
		Msg("Command failed")
	c.send(s, protocol.Err(pe))
}

func (c *Coordinator) cmdLogin(s *Session, cmd *protocol.Command) error {
	if s.role != RoleUndeclared {
		return protocol.Violation("cannot switch %s session to client", s.role)
	}
	login, err := cmd.NextString()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	c.declareClient(s, login)
	return nil
}

// declareClient turns an undeclared session into a client.
func (c *Coordinator) declareClient(s *Session, login string) {
	s.role = RoleClient
	s.name = login
	c.announce(s)
	log.Info().Int("session", s.id).Str("login", login).Msg("Client logged in")
}

func (c *Coordinator) cmdRegister(s *Session, cmd *protocol.Command) error {
	if s.role != RoleUndeclared {
		return protocol.Violation("cannot switch %s session to device", s.role)
	}
	index, err := cmd.NextInt()
	if err != nil {
		return err
	}
	name, err := cmd.NextString()
	if err != nil {
		return err
	}
	kind, err := cmd.NextInt()
	if err != nil {
		return err
	}
	host, err := cmd.NextString()
	if err != nil {
		return err
	}
	port, err := cmd.NextInt()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	return c.declareDevice(s, index, name, kind, host, port)
}

// declareDevice turns an undeclared session into a device with a unique
// name and brings it up to date with the coordinator state.
func (c *Coordinator) declareDevice(s *Session, index int, name string, kind int, host string, port int) error {
	if c.findDevice(name) != nil {
		return protocol.NameConflict("name %s already registered", name)
	}

	s.role = RoleDevice
	s.name = name
	s.index = index
	s.kind = kind
	s.host = host
	s.port = port

	c.send(s, protocol.Status(c.state))
	if c.holder > noHolder {
		c.send(s, protocol.Priority(c.holder, 0))
	}
	c.send(s, protocol.Auth("registered_as", s.id))
	c.announce(s)
	c.sendListing(s)

	log.Info().
		Int("session", s.id).
		Str("device", name).
		Str("host", host).
		Int("port", port).
		Msg("Device registered")

	c.weatherChanged()
	c.bopMaskChanged()
	return nil
}

func (c *Coordinator) cmdPassword(s *Session, cmd *protocol.Command) error {
	password, err := cmd.NextString()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}

	ok, err := c.authenticate(s, password)
	if err != nil {
		return err
	}
	if ok {
		c.send(s, fmt.Sprintf("logged_as %d", s.id))
		c.send(s, protocol.Status(c.state))
		return nil
	}

	log.Warn().Int("session", s.id).Str("login", s.name).Msg("Invalid password")
	c.after(c.cfg.AuthPenalty, func() {
		c.complete(s, protocol.AuthFailure("invalid login or password"))
	})
	return errSuspended
}

// authenticate checks password for the session's login.
func (c *Coordinator) authenticate(s *Session, password string) (bool, error) {
	if c.auth == nil {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := c.auth.Authenticate(ctx, s.name, password)
	if err != nil {
		log.Error().Err(err).Str("login", s.name).Msg("Authentication backend failed")
		return false, protocol.System("authentication unavailable")
	}
	if ok {
		s.authenticated = true
	}
	return ok, nil
}

func (c *Coordinator) cmdReady(s *Session, cmd *protocol.Command) error {
	return cmd.End()
}

func (c *Coordinator) cmdInfo(s *Session, cmd *protocol.Command) error {
	if err := cmd.End(); err != nil {
		return err
	}
	c.sendListing(s)
	return c.startInfo(s)
}

func (c *Coordinator) cmdPriority(s *Session, cmd *protocol.Command) error {
	bid, err := cmd.NextInt()
	if err != nil {
		return err
	}
	timeout := 0
	if cmd.Is("prioritydeferred") || cmd.Remaining() > 0 {
		if timeout, err = cmd.NextInt(); err != nil {
			return err
		}
	}
	if err := cmd.End(); err != nil {
		return err
	}
	if timeout < 0 {
		return protocol.Syntax("%s: negative timeout %d", cmd.Name, timeout)
	}
	c.requestPriority(s, bid, time.Duration(timeout)*time.Second)
	return nil
}

func (c *Coordinator) cmdKey(s *Session, cmd *protocol.Command) error {
	device, err := cmd.NextString()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	if c.findDevice(device) == nil {
		return protocol.UnknownTarget("cannot find device with name %s", device)
	}
	key := c.issueKey(s)
	c.send(s, fmt.Sprintf("authorization_key %s %d", device, key))
	return nil
}

// issueKey generates a fresh authorization key and stores it on target,
// the session a device will later verify.
func (c *Coordinator) issueKey(target *Session) int {
	target.key = c.newKey()
	return target.key
}

// verifyKey reports whether key matches the one issued to target.
func (c *Coordinator) verifyKey(target *Session, key int) bool {
	return target.key != 0 && target.key == key
}

func (c *Coordinator) cmdAuthorize(s *Session, cmd *protocol.Command) error {
	clientID, err := cmd.NextInt()
	if err != nil {
		return err
	}
	key, err := cmd.NextInt()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	if clientID < 0 {
		c.logMessage(Source, protocol.SeverityError,
			fmt.Sprintf("invalid client ID requested for authentication: %d from %s", clientID, s.name))
		return protocol.Syntax("invalid client id %d", clientID)
	}

	target, ok := c.sessions[clientID]
	if !ok {
		return protocol.UnknownTarget("client vanished during auth sequence")
	}
	if target.key == 0 {
		c.send(s, protocol.Auth("authorization_failed", clientID))
		return protocol.AuthFailure("client didn't ask for authorization")
	}
	if !c.verifyKey(target, key) {
		c.send(s, protocol.Auth("authorization_failed", clientID))
		return protocol.AuthFailure("invalid authorization key")
	}

	c.send(s, protocol.Auth("authorization_ok", clientID))
	c.sendListing(s)
	return nil
}

func (c *Coordinator) cmdState(s *Session, cmd *protocol.Command) error {
	w, err := cmd.NextUint()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	c.deviceStatus(s, state.Word(w))
	return nil
}

func (c *Coordinator) cmdMessageMask(s *Session, cmd *protocol.Command) error {
	mask, err := cmd.NextUint()
	if err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	if mask > uint32(protocol.SeverityAll) {
		return protocol.Syntax("message mask %#x out of range", mask)
	}
	s.messageMask = protocol.Severity(mask)
	return nil
}

func (c *Coordinator) cmdLog(s *Session, cmd *protocol.Command) error {
	level, err := cmd.NextString()
	if err != nil {
		return err
	}
	severity, err := protocol.ParseSeverity(level)
	if err != nil {
		return err
	}
	text, err := cmd.Rest()
	if err != nil {
		return err
	}
	c.logMessage(s.name, severity, strings.TrimSpace(text))
	return nil
}
