package sqldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/sqldoc/pkg/fs"
)

// fileMagic is the header every SQLite database file starts with.
const fileMagic = "SQLite format 3"

// headerReadSize is how much of the file is read for the magic check.
const headerReadSize = 16

// validateFile checks that path is a zero-length file or starts with
// [fileMagic]. It never opens a native connection, so a file that is not a
// database is never touched by the engine.
func validateFile(fsys fs.FS, path string) error {
	file, err := fsys.Open(path)
	if err != nil {
		return newError(ErrInvalidFile, path, err)
	}

	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return newError(ErrInvalidFile, path, fmt.Errorf("stat: %w", err))
	}

	if info.IsDir() {
		return errorf(ErrInvalidFile, path, "is a directory")
	}

	if info.Size() == 0 {
		return nil
	}

	header := make([]byte, headerReadSize)

	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return newError(ErrInvalidFile, path, fmt.Errorf("read header: %w", err))
	}

	if n < len(fileMagic) || !bytes.Equal(header[:len(fileMagic)], []byte(fileMagic)) {
		return errorf(ErrInvalidFile, path, "missing SQLite header")
	}

	return nil
}
