package bridge

import (
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
)

// titleBufMax is the number of bytes of a title copied into the fixed
// MSG_SET_TITLE buffer.
const titleBufMax = 128

// Ticker runs the periodic housekeeping pass: reconciling dead
// windows and titles, and firing frame callbacks.
type Ticker struct {
	client   *qubesgui.Client
	reg      *registry.Registry
	surfaces map[uint32]*SurfaceData
}

// NewTicker builds a Ticker sharing state with the rest of the agent.
func NewTicker(client *qubesgui.Client, reg *registry.Registry, surfaces map[uint32]*SurfaceData) *Ticker {
	return &Ticker{client: client, reg: reg, surfaces: surfaces}
}

// Tick runs one pass: for each registry entry, schedule it for
// destruction if its surface is gone, otherwise refresh its title and
// fire pending frame callbacks; then destroy everything scheduled.
func (tk *Ticker) Tick(timestampMS uint32) error {
	var dead []uint32
	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	tk.reg.Iter(func(id uint32, e *registry.BackendEntry) {
		if !e.Surface.Alive() {
			dead = append(dead, id)
			return
		}
		surface := e.Surface.Surface()
		if surface == nil {
			return
		}
		if title := surface.Title(); title != "" {
			st := qubesgui.NewSetTitle(title[:min(len(title), titleBufMax)])
			recordErr(tk.client.SendRaw(st.Encode(), id, qubesgui.MsgSetTitle))
		}
		surface.DrainFrameCallbacks(timestampMS)
	})
	if firstErr != nil {
		return firstErr
	}

	for _, id := range dead {
		if err := tk.client.Send(qubesgui.Destroy{}, id); err != nil {
			return err
		}
		tk.reg.Remove(id)
		delete(tk.surfaces, id)
	}
	return nil
}
