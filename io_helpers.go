package waveline

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/solstice-audio/waveline/internal/werr"
)

// headerPeekBytes is how much of a file's head format.Detect needs to see;
// MP4's ftyp box starts at offset 4 and FLAC/WAV/OGG magic all fit well
// within this.
const headerPeekBytes = 64

// peekHeader reads a file's leading bytes for format detection without
// disturbing the chunkreader.Reader opened right after it; classified the
// same way chunkreader.Open classifies its own os.Open errors.
func peekHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", werr.ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", werr.ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("%w: opening %s: %v", werr.ErrIoFailure, path, err)
	}
	defer f.Close()

	buf := make([]byte, headerPeekBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("%w: reading header of %s: %v", werr.ErrIoFailure, path, err)
	}
	return buf[:n], nil
}

// readAtFunc builds the random-access reader passed to format.Parser.Init.
// None of the current parsers reads through it: MP4's Init opens the path
// itself to find the moov box, and FLAC reads its seektable during Align.
func readAtFunc(path string) func(off int64, p []byte) (int, error) {
	return func(off int64, p []byte) (int, error) {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("%w: opening %s: %v", werr.ErrIoFailure, path, err)
		}
		defer f.Close()
		return f.ReadAt(p, off)
	}
}

// nowFunc is a seam so GeneratedAt timestamps and deadline arithmetic can be
// stubbed out in tests without depending on wall-clock time.
var nowFunc = time.Now
