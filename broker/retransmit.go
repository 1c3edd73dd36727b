package broker

import (
	"log"
	"time"

	"mezzenger/persist"
)

// messageToResend pairs a retained message with its retention key for the
// post-unlock re-encode/publish pass.
type messageToResend struct {
	checksum string
	entry    persist.Entry
}

// retransmitLoop periodically scans the retention table and resends every
// message whose resend interval has elapsed. It exits once the broker
// starts draining.
func (b *Broker) retransmitLoop() {
	ticker := time.NewTicker(b.cfg.RetransmitTick)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.retransmitDue()
		}
	}
}

// retransmitDue holds the retention mutex for the entire scan-and-update
// pass: nothing else can observe or mutate the table mid-scan, so there is
// no snapshot-then-iterate race to get wrong.
func (b *Broker) retransmitDue() {
	now := time.Now()

	b.retentionMu.Lock()
	var due []messageToResend
	for checksum, entry := range b.retention {
		if now.Sub(entry.LastResentAt) < b.cfg.ResendInterval {
			continue
		}
		entry.LastResentAt = now
		b.retention[checksum] = entry
		due = append(due, messageToResend{checksum: checksum, entry: entry})
	}
	var snapshot persist.Table
	if len(due) > 0 && b.cfg.Persist != nil {
		snapshot = cloneTable(b.retention)
	}
	b.retentionMu.Unlock()

	if len(due) == 0 {
		return
	}

	for _, d := range due {
		raw, err := b.codec.Encode(d.entry.Msg)
		if err != nil {
			log.Printf("broker: re-encoding retained message %s failed: %v", d.checksum, err)
			continue
		}
		b.publishRaw(raw, d.entry.Msg.Name)
	}

	if snapshot != nil {
		if err := b.cfg.Persist.Save(snapshot); err != nil {
			log.Printf("broker: persisting after retransmit failed: %v", err)
		}
	}
}
