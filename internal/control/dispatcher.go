package control

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bosstimer/internal/eventbus"
	kit "bosstimer/internal/transport"
	logx "bosstimer/pkg/logx"
	"bosstimer/pkg/tgui"
)

var (
	ErrUsage          = errors.New("usage")
	ErrUnknownCommand = errors.New("unknown command")
	ErrForbidden      = errors.New("not allowed")
)

// CallbackAck is the callback data of the alarm notice's Stop button.
const CallbackAck = "alarm:ack"

// maxReplyRunes keeps an escaped reply inside one Telegram message.
const maxReplyRunes = 3500

// Command is one operator command.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Timeout     time.Duration // optional override of Options.Timeout
	// Mutates marks commands that edit entries; a successful run publishes
	// timer.edited.
	Mutates bool
	Handle  HandlerFunc
}

// Request is one parsed command invocation.
type Request struct {
	Source  string // adapter name
	FromID  int64
	Chat    kit.ChatTarget
	Command string
	Args    []string

	// Pre asks the transport to render the reply as preformatted text.
	Pre bool
}

type Options struct {
	// OwnerUserIDs may use commands and buttons over Telegram. Local console
	// input is always trusted.
	OwnerUserIDs []int64
	Timeout      time.Duration
	Bus          eventbus.Bus
}

type Dispatcher struct {
	host Host
	log  logx.Logger
	bus  eventbus.Bus

	mu       sync.RWMutex
	owners   map[int64]bool
	timeout  time.Duration
	commands map[string]*Command
	names    []string
	adapters map[string]kit.Adapter

	wg sync.WaitGroup
}

func New(host Host, log logx.Logger, opts Options) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		host:     host,
		log:      log,
		bus:      opts.Bus,
		commands: map[string]*Command{},
		adapters: map[string]kit.Adapter{},
	}
	d.Apply(opts)
	for _, c := range builtinCommands(host) {
		d.Register(c)
	}
	d.Register(Command{
		Name: "help", Aliases: []string{"start"},
		Usage: "help", Description: "List commands",
		Handle: d.help,
	})
	return d
}

func (d *Dispatcher) help(_ context.Context, req *Request) (string, error) {
	var b strings.Builder
	for _, c := range d.Commands() {
		fmt.Fprintf(&b, "%-32s %s\n", c.Usage, c.Description)
	}
	req.Pre = true
	return b.String(), nil
}

// Apply updates the owner list and default timeout.
func (d *Dispatcher) Apply(opts Options) {
	owners := make(map[int64]bool, len(opts.OwnerUserIDs))
	for _, id := range opts.OwnerUserIDs {
		owners[id] = true
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d.mu.Lock()
	d.owners = owners
	d.timeout = timeout
	d.mu.Unlock()
}

// Register adds c, replacing any command with the same name or alias.
func (d *Dispatcher) Register(c Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cc := c
	if _, exists := d.commands[c.Name]; !exists {
		d.names = append(d.names, c.Name)
		sort.Strings(d.names)
	}
	d.commands[c.Name] = &cc
	for _, a := range c.Aliases {
		d.commands[a] = &cc
	}
}

// Attach registers an adapter so replies to its updates can be sent.
func (d *Dispatcher) Attach(ad kit.Adapter) {
	d.mu.Lock()
	d.adapters[ad.Name()] = ad
	d.mu.Unlock()
}

// Commands lists registered commands sorted by name, for help and chat menus.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Command, 0, len(d.names))
	for _, n := range d.names {
		out = append(out, *d.commands[n])
	}
	return out
}

// MenuCommands returns the chat menu for transports that support one.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	cmds := d.Commands()
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (d *Dispatcher) allowed(source string, fromID int64) bool {
	if source != "telegram" {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.owners[fromID]
}

// Execute runs a command line on behalf of req.Source/FromID. The returned
// request carries reply rendering hints.
func (d *Dispatcher) Execute(ctx context.Context, req Request, line string) (string, *Request, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return "", &req, fmt.Errorf("%w: empty", ErrUnknownCommand)
	}
	req.Command = commandName(toks[0])
	req.Args = toks[1:]

	if !d.allowed(req.Source, req.FromID) {
		return "", &req, ErrForbidden
	}

	d.mu.RLock()
	c, ok := d.commands[req.Command]
	timeout := d.timeout
	d.mu.RUnlock()
	if !ok {
		return "", &req, fmt.Errorf("%w %q (try help)", ErrUnknownCommand, req.Command)
	}
	if c.Timeout > 0 {
		timeout = c.Timeout
	}

	h := Chain(c.Handle,
		MWRequestLog(d.log),
		MWPanicRecover(d.log),
		MWTimeout(timeout),
	)
	reply, err := h(ctx, &req)
	if err != nil && errors.Is(err, ErrUsage) && c.Usage != "" {
		err = fmt.Errorf("%w\nusage: %s", err, c.Usage)
	}
	if err == nil && c.Mutates && d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.TimerEdited, Time: time.Now(), Data: req.Command})
	}
	return reply, &req, err
}

// Run handles updates until in is closed or ctx ends. Each update runs in its
// own goroutine so a slow command (update check) never delays "stop".
func (d *Dispatcher) Run(ctx context.Context, in <-chan kit.Update) {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-in:
			if !ok {
				return
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.HandleUpdate(ctx, up)
			}()
		}
	}
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, up kit.Update) {
	d.mu.RLock()
	ad := d.adapters[up.Source]
	d.mu.RUnlock()

	switch up.Kind {
	case kit.UpdateCallback:
		if up.Callback != nil {
			d.handleCallback(ctx, ad, up.Source, up.Callback)
		}
	case kit.UpdateMessage:
		if up.Message != nil {
			d.handleMessage(ctx, ad, up.Source, up.Message)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, ad kit.Adapter, source string, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	// In chats only slash commands are ours; the console takes bare words.
	if source == "telegram" && !strings.HasPrefix(text, "/") {
		return
	}
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	reply, req, err := d.Execute(ctx, Request{Source: source, FromID: m.FromID, Chat: to}, text)
	if errors.Is(err, ErrForbidden) {
		d.log.Debug("command from non-owner ignored", logx.Int64("from_id", m.FromID), logx.String("cmd", req.Command))
		return
	}
	if err != nil {
		reply = "error: " + err.Error()
	}
	if ad == nil || strings.TrimSpace(reply) == "" {
		return
	}

	opt := &kit.SendOptions{DisablePreview: true}
	if source == "telegram" {
		opt.ParseMode = "HTML"
		reply = tgui.TruncRunes(reply, maxReplyRunes)
		if req.Pre && err == nil {
			reply = tgui.Pre(reply)
		} else {
			reply = tgui.Esc(reply)
		}
	}
	if _, serr := ad.SendText(ctx, to, reply, opt); serr != nil {
		d.log.Warn("reply failed", logx.String("source", source), logx.Err(serr))
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, ad kit.Adapter, source string, cb *kit.Callback) {
	answer := func(text string) {
		if ad == nil {
			return
		}
		if err := ad.AnswerCallback(ctx, cb.ID, text); err != nil {
			d.log.Debug("answer callback failed", logx.Err(err))
		}
	}
	if !d.allowed(source, cb.FromID) {
		answer("Not allowed")
		return
	}
	scope, action, _, ok := tgui.ParseData(cb.Data)
	if !ok || scope+":"+action != CallbackAck {
		answer("")
		d.log.Debug("unknown callback", logx.String("data", cb.Data))
		return
	}
	n := d.host.StopAlarm(ctx)
	if n == 0 {
		answer("No alarm ringing")
		return
	}
	answer("Alarm stopped")
}

// AckMarkup is the inline keyboard attached to alarm notices.
func AckMarkup() *kit.SendOptions {
	kb := tgui.Keyboard([]tgui.Button{{Text: "⏹ Stop alarm", Data: CallbackAck}})
	return &kit.SendOptions{ReplyMarkupAdapter: kb}
}
