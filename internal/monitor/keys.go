package monitor

import (
	"bufio"
	"io"
)

// keyEsc is the escape key byte.
const keyEsc = 0x1b

// WatchKeys returns a channel that is closed once ESC or q is read from r.
// End of input leaves the channel open. Terminals in cooked mode deliver keys
// after Enter.
func WatchKeys(r io.Reader) <-chan struct{} {
	stop := make(chan struct{})
	go func() {
		br := bufio.NewReader(r)
		for {
			b, err := br.ReadByte()
			if err != nil {
				return
			}
			if b == keyEsc || b == 'q' || b == 'Q' {
				close(stop)
				return
			}
		}
	}()
	return stop
}
