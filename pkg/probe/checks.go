package probe

import (
	"context"
	"fmt"
	"os"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// FileReadable checks that path names a readable regular file.
func FileReadable(path string) CheckFunc {
	return func(context.Context) error {
		if path == "" {
			return fmt.Errorf("no file configured")
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	}
}

// Ping checks that a database answers.
func Ping(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.PingContext(ctx)
	}
}

// NotEmpty fails when value is empty.
func NotEmpty(what, value string) CheckFunc {
	return func(context.Context) error {
		if value == "" {
			return fmt.Errorf("%s is not configured", what)
		}
		return nil
	}
}
