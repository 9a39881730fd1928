package format

import (
	"bytes"
	"path/filepath"
	"strings"
)

// extHints maps an extension to a candidate Kind, used only as an optional
// hint; magic-byte detection is authoritative.
var extHints = map[string]Kind{
	".mp3":  MP3,
	".wav":  WAV,
	".flac": FLAC,
	".ogg":  OGGVorbis,
	".opus": Opus,
	".aac":  MP4,
	".m4a":  MP4,
	".m4b":  MP4,
	".mp4":  MP4,
}

// ExtHint returns the candidate Kind for a file extension, or Unknown if the
// extension carries no useful hint.
func ExtHint(path string) Kind {
	return extHints[strings.ToLower(filepath.Ext(path))]
}

// DetectMagic inspects the leading bytes of a file to identify its container:
// MP3 (ID3 or an 11-bit frame sync), WAV (RIFF..WAVE), FLAC (fLaC), OGG
// (OggS; Opus is disambiguated by an OpusHead packet inside the first page),
// MP4 (ftyp at offset 4). A signature longer than header simply does not
// match, so short input yields Unknown rather than an error unless one of
// the shorter signatures (ID3, frame sync, fLaC, OggS) already matches.
func DetectMagic(header []byte) Kind {
	if len(header) >= 3 && bytes.Equal(header[:3], []byte("ID3")) {
		return MP3
	}
	if len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0 {
		return MP3
	}
	if len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")) {
		return WAV
	}
	if len(header) >= 4 && bytes.Equal(header[:4], []byte("fLaC")) {
		return FLAC
	}
	if len(header) >= 4 && bytes.Equal(header[:4], []byte("OggS")) {
		if bytes.Contains(header, []byte("OpusHead")) {
			return Opus
		}
		return OGGVorbis
	}
	if len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")) {
		return MP4
	}
	return Unknown
}
