package worker

import (
	"encoding/gob"

	"github.com/opd-ai/trackcore/pool"
)

// Kind is the envelope type of a Message.
type Kind string

const (
	// KindReady announces a started Backend to the main context.
	KindReady Kind = "ready"
	// KindChannel carries an action between a Frontend and its Backend.
	KindChannel Kind = "channel"
	// KindCallMainWindow asks the main context to run a registered function.
	KindCallMainWindow Kind = "callMainWindow"
	// KindCallMainWindowResult answers a KindCallMainWindow message.
	KindCallMainWindowResult Kind = "callMainWindowResult"
)

// Action names an operation carried on a channel. The set is closed: handlers
// switch over it and reject anything else with ErrUnknownAction.
type Action uint8

const (
	ActionNone Action = iota
	// ActionReply answers a Frontend.Call.
	ActionReply
	// ActionError answers a Frontend.Call whose handler failed.
	ActionError
	// ActionProgress is pushed by a backend to report processed frames.
	ActionProgress

	ActionInitializeFingerprint
	ActionAddFingerprintFrames
	ActionGetFingerprint
	ActionCancelFingerprint

	ActionInitializeLoudness
	ActionAddLoudnessFrames
	ActionGetLoudness
	ActionCancelLoudness

	actionCount
)

var actionNames = [actionCount]string{
	ActionNone:                  "none",
	ActionReply:                 "reply",
	ActionError:                 "error",
	ActionProgress:              "progress",
	ActionInitializeFingerprint: "initializeFingerprint",
	ActionAddFingerprintFrames:  "addFingerprintFrames",
	ActionGetFingerprint:        "getFingerprint",
	ActionCancelFingerprint:     "cancelFingerprint",
	ActionInitializeLoudness:    "initializeEbur128Calculation",
	ActionAddLoudnessFrames:     "addFrames",
	ActionGetLoudness:           "getEbur128",
	ActionCancelLoudness:        "cancelEbur128Calculation",
}

func (a Action) String() string {
	if a < actionCount {
		return actionNames[a]
	}
	return "unknown"
}

// Valid reports whether a is a member of the action set other than ActionNone.
func (a Action) Valid() bool {
	return a > ActionNone && a < actionCount
}

// isReply reports whether a answers a call rather than starting one.
func (a Action) isReply() bool {
	return a == ActionReply || a == ActionError
}

// Message is the envelope exchanged over ports. Which fields are meaningful
// depends on Kind.
type Message struct {
	Kind         Kind
	FrontendName string
	Channel      Channel
	Action       Action
	Args         []any
	Transfer     []*pool.Buffer
	CallID       uint64
	Name         string
	Result       any
	Error        string
}

// Reply is what an ActionHandler returns for a message. Transfer buffers move
// back to the caller.
type Reply struct {
	Args     []any
	Transfer []*pool.Buffer
}

// RegisterType makes a concrete type usable inside Args or Result on a
// ConnPort. In-process pipes need no registration.
func RegisterType(v any) {
	gob.Register(v)
}

// transferAll detaches every buffer from the sender and returns the moved
// copies. Nil entries are dropped.
func transferAll(bufs []*pool.Buffer) []*pool.Buffer {
	if len(bufs) == 0 {
		return nil
	}
	moved := make([]*pool.Buffer, 0, len(bufs))
	for _, b := range bufs {
		if b == nil {
			continue
		}
		moved = append(moved, b.Transfer())
	}
	return moved
}

func init() {
	gob.Register([]any{})
	gob.Register(map[string]any{})
}
