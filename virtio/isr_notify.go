package virtio

import (
	"github.com/pkg/errors"
)

const (
	ISR_QUEUE  = 1
	ISR_CONFIG = 2
)

// IsrStatus is the interrupt status byte. Reading it acknowledges the
// interrupt on the device side.
type IsrStatus struct {
	r RegionReader
}

func NewIsrStatus(r *Region) *IsrStatus {
	return &IsrStatus{r: r.Reader()}
}

// Read returns whether a queue interrupt and a configuration change
// interrupt were pending.
func (i *IsrStatus) Read() (queue, config bool) {
	v := i.r.Read8(0)
	return v&ISR_QUEUE != 0, v&ISR_CONFIG != 0
}

// NotifCfg is the notification area used to kick queues.
type NotifCfg struct {
	r          *Region
	multiplier uint32
}

func NewNotifCfg(r *Region, multiplier uint32) *NotifCfg {
	return &NotifCfg{r: r, multiplier: multiplier}
}

func (n *NotifCfg) Multiplier() uint32 {
	return n.multiplier
}

// Offset returns the region offset of the notification register for a
// queue whose queue_notify_off is notifyOff.
func (n *NotifCfg) Offset(notifyOff uint16) (uint64, error) {
	off := uint64(notifyOff) * uint64(n.multiplier)
	if off+NotifyCfgMinSize > n.r.Len() {
		return 0, errors.Errorf("notify offset %#x outside %d byte notification region", off, n.r.Len())
	}
	return off, nil
}

// Kick notifies the device that queue has new buffers.
func (n *NotifCfg) Kick(notifyOff, queue uint16) error {
	off, err := n.Offset(notifyOff)
	if err != nil {
		return errors.Wrapf(err, "kicking queue %d", queue)
	}

	n.r.Write16(off, queue)
	return nil
}
