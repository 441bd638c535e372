// internal/ssh/ssh_transfer.go

package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	apperr "provisioner/internal/error"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
)

// Files performs remote file operations over an SFTP session.
type Files struct {
	client *sftp.Client
}

// NewFiles wraps an established SFTP client.
func NewFiles(client *sftp.Client) *Files {
	return &Files{client: client}
}

// Exists reports whether path exists on the remote host.
func (f *Files) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := f.client.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperr.New(apperr.FileError, fmt.Sprintf("failed to stat %s", p), err)
}

// ReadFile returns the content of a remote file.
func (f *Files) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := f.client.Open(p)
	if err != nil {
		return nil, apperr.New(apperr.FileError, fmt.Sprintf("failed to open %s", p), err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperr.New(apperr.FileError, fmt.Sprintf("failed to read %s", p), err)
	}
	return data, nil
}

// Append writes the lines missing from p at its end, creating p and its
// parent directory when absent.
func (f *Files) Append(ctx context.Context, p string, lines ...string) error {
	exists, err := f.Exists(ctx, p)
	if err != nil {
		return err
	}

	var existing []byte
	if exists {
		if existing, err = f.ReadFile(ctx, p); err != nil {
			return err
		}
	} else if err := f.client.MkdirAll(path.Dir(p)); err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to create directory for %s", p), err)
	}

	data := appendMissing(existing, lines)
	if len(data) == 0 {
		return nil
	}

	file, err := f.client.OpenFile(p, os.O_WRONLY|os.O_CREATE)
	if err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to open %s for writing", p), err)
	}
	defer file.Close()

	written, err := file.WriteAt(data, int64(len(existing)))
	if err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to append to %s", p), err)
	}
	if written != len(data) {
		return apperr.Newf(apperr.FileError, "incomplete write to %s: wrote %d bytes instead of %d", p, written, len(data))
	}
	return nil
}

// Close ends the SFTP session.
func (f *Files) Close() error {
	if f.client == nil {
		return nil
	}
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("error closing SFTP client: %v", err)
	}
	f.client = nil
	return nil
}
