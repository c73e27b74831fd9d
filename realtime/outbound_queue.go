package realtime

import "github.com/Thejuampi/realtime-client-go/realtime/protocol"

type outboundFrame struct {
	eventType protocol.EventType
	data      []byte
}

// outboundQueue holds encoded frames that were sent while offline. It is
// owned by the transport loop and needs no locking.
type outboundQueue struct {
	frames []outboundFrame
}

func (queue *outboundQueue) push(frame outboundFrame) {
	queue.frames = append(queue.frames, frame)
}

// drain returns the queued frames in enqueue order and empties the queue.
func (queue *outboundQueue) drain() []outboundFrame {
	frames := queue.frames
	queue.frames = nil
	return frames
}

func (queue *outboundQueue) len() int {
	return len(queue.frames)
}
