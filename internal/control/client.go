package control

import (
	"context"
	"fmt"
	"net"
	"time"
)

const dialTimeout = 2 * time.Second

// Send writes one command to the server at socketPath and closes the
// connection. It does not wait for the command to be applied.
func Send(ctx context.Context, socketPath string, cmd Command) error {
	if _, ok := commandNames[cmd]; !ok {
		return fmt.Errorf("unknown command %d", int(cmd))
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte(cmd.String() + "\n")); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	return nil
}
