package fakeserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thejuampi/realtime-client-go/realtime/protocol"
)

// journal is an append-only, bounded log of published messages per channel.
// Message ids are zero-padded global sequence numbers, so they order
// lexically.
type journal struct {
	lock     sync.RWMutex
	seq      uint64
	maxSize  int
	channels map[string][]protocol.Message
}

func newJournal(maxSize int) *journal {
	if maxSize <= 0 {
		maxSize = 100_000
	}
	return &journal{maxSize: maxSize, channels: make(map[string][]protocol.Message)}
}

func formatID(seq uint64) string {
	return fmt.Sprintf("%010d", seq)
}

// append assigns the next id and timestamp to message and stores it.
func (j *journal) append(message protocol.Message) protocol.Message {
	j.lock.Lock()
	defer j.lock.Unlock()

	j.seq++
	message.ID = formatID(j.seq)
	message.Timestamp = time.Now().UnixMilli()

	entries := append(j.channels[message.Channel], message)
	if len(entries) > j.maxSize {
		entries = entries[len(entries)-j.maxSize:]
	}
	j.channels[message.Channel] = entries
	return message
}

// after returns the messages of channel stored after position that match
// name. An empty name matches every message.
func (j *journal) after(channel string, name string, position string) []protocol.Message {
	j.lock.RLock()
	defer j.lock.RUnlock()

	var replay []protocol.Message
	for _, message := range j.channels[channel] {
		if message.ID <= position {
			continue
		}
		if name != "" && message.Name != name {
			continue
		}
		replay = append(replay, message)
	}
	return replay
}

func (j *journal) snapshot(channel string) []protocol.Message {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return append([]protocol.Message(nil), j.channels[channel]...)
}
