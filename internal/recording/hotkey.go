package recording

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.design/x/hotkey"

	"github.com/driftnote/voicectl/internal/shared"
)

// keyListener is the slice of *hotkey.Hotkey the controller depends on,
// kept as an interface so the event handling is testable without grabbing
// a real global key.
type keyListener interface {
	Register() error
	Unregister() error
	Keydown() <-chan hotkey.Event
	Keyup() <-chan hotkey.Event
}

// HotkeyController converts presses of one configurable global key into
// start/stop intents on the state machine. Key-down auto-repeats from a held
// key are suppressed, and rebinding removes the previous listener before
// registering the new one.
type HotkeyController struct {
	fsm *StateMachine
	log *slog.Logger

	newListener func(mods []hotkey.Modifier, key hotkey.Key) keyListener

	mu   sync.Mutex
	key  string
	hk   keyListener
	held bool
	done chan struct{}
	wg   sync.WaitGroup
}

func NewHotkeyController(fsm *StateMachine, log *slog.Logger) *HotkeyController {
	if log == nil {
		log = slog.Default()
	}
	return &HotkeyController{
		fsm: fsm,
		log: log.With("component", "hotkey"),
		newListener: func(mods []hotkey.Modifier, key hotkey.Key) keyListener {
			return hotkey.New(mods, key)
		},
	}
}

// Bind registers the named key as the global push-to-talk trigger,
// unregistering any previous binding first.
func (c *HotkeyController) Bind(name string) error {
	mods, key, err := ParseKey(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	hk := c.newListener(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %q: %w", name, err)
	}

	c.key = name
	c.hk = hk
	c.held = false
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.listen(hk, c.done)

	c.log.Info("hotkey bound", "key", name)
	return nil
}

// Key returns the currently bound key name.
func (c *HotkeyController) Key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

func (c *HotkeyController) Close() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// stopLocked tears down the active listener. Callers hold c.mu.
func (c *HotkeyController) stopLocked() {
	if c.hk == nil {
		return
	}
	close(c.done)
	if err := c.hk.Unregister(); err != nil {
		c.log.Warn("failed to unregister hotkey", "key", c.key, "error", err)
	}
	c.hk = nil
	c.done = nil
	c.key = ""
}

func (c *HotkeyController) listen(hk keyListener, done chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-hk.Keydown():
			c.handleKeyDown()
		case <-hk.Keyup():
			c.handleKeyUp()
		case <-done:
			return
		}
	}
}

// handleKeyDown issues a start intent on the first press only; the held
// flag swallows OS auto-repeat key-downs until the key is released.
func (c *HotkeyController) handleKeyDown() {
	c.mu.Lock()
	if c.held {
		c.mu.Unlock()
		return
	}
	c.held = true
	c.mu.Unlock()

	if c.fsm.State() != StateIdle {
		c.log.Debug("hotkey press ignored", "state", c.fsm.State())
		return
	}
	c.fsm.Start(SourceHotkey)
}

func (c *HotkeyController) handleKeyUp() {
	c.mu.Lock()
	c.held = false
	c.mu.Unlock()

	if c.fsm.State() == StateRecording && c.fsm.Source() == SourceHotkey {
		c.fsm.Stop()
		c.fsm.ClearSource()
	}
}

// ParseKey turns a preference string like "F8" or "ctrl+shift+space" into
// hotkey modifiers and a key code.
func ParseKey(name string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), "+")
	if len(parts) == 0 || parts[0] == "" {
		return nil, 0, shared.ErrInvalidHotkey
	}

	var mods []hotkey.Modifier
	for _, part := range parts[:len(parts)-1] {
		switch part {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		default:
			return nil, 0, fmt.Errorf("%w: unknown modifier %q", shared.ErrInvalidHotkey, part)
		}
	}

	key, ok := keyNames[parts[len(parts)-1]]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown key %q", shared.ErrInvalidHotkey, parts[len(parts)-1])
	}
	return mods, key, nil
}

var keyNames = map[string]hotkey.Key{
	"space": hotkey.KeySpace,
	"0":     hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}
