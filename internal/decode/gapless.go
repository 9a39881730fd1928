package decode

import (
	"encoding/binary"
)

// mp3EncoderDelaySamples is go-mp3's own internal decoder delay (529
// samples), added to the LAME/Xing tag's encoder-delay field since go-mp3
// does not account for it itself; used here purely to size the encoder-delay
// skip counter rather than a playback-seek trim.
const mp3EncoderDelaySamples = 529

// mp3EncoderDelay scans a buffer starting at the first MP3 frame for a
// Xing/Info tag carrying a LAME gapless header, and returns the number of
// leading per-channel samples the encoder primed the bitstream with. Returns
// 0 when no LAME tag is present (most non-LAME encoders skip this metadata
// entirely, and the decoder simply has no knowledge of priming to remove).
func mp3EncoderDelay(firstFrame []byte) int64 {
	header, err := parseMP3SideInfoFrame(firstFrame)
	if err != nil {
		return 0
	}
	xingOffset := 4 + header.crcBytes + header.sideInfoBytes
	if xingOffset >= len(firstFrame) {
		return 0
	}
	delay, _, ok := parseXingLAMEGapless(firstFrame[xingOffset:])
	if !ok {
		return 0
	}
	return delay + mp3EncoderDelaySamples
}

type mp3SideInfoFrame struct {
	crcBytes      int
	sideInfoBytes int
}

func parseMP3SideInfoFrame(b []byte) (mp3SideInfoFrame, error) {
	sr, ch, _, ok := mp3FrameHeaderInfoForGapless(b)
	if !ok {
		return mp3SideInfoFrame{}, errNotMP3Frame
	}
	_ = sr

	h := binary.BigEndian.Uint32(b)
	versionID := (h >> 19) & 0x3
	protectionBit := (h >> 16) & 0x1
	isMPEG1 := versionID == 0x3
	isMono := ch == 1

	sideInfoBytes := 0
	switch {
	case isMPEG1 && isMono:
		sideInfoBytes = 17
	case isMPEG1:
		sideInfoBytes = 32
	case isMono:
		sideInfoBytes = 9
	default:
		sideInfoBytes = 17
	}

	crcBytes := 0
	if protectionBit == 0 {
		crcBytes = 2
	}
	return mp3SideInfoFrame{crcBytes: crcBytes, sideInfoBytes: sideInfoBytes}, nil
}

var errNotMP3Frame = bytesError("decode: not a valid mp3 frame header")

type bytesError string

func (e bytesError) Error() string { return string(e) }

// mp3FrameHeaderInfoForGapless duplicates format.mp3FrameHeaderInfo's sync
// check (that function is unexported in the format package) since this
// package only needs enough of the header to locate the side info size.
func mp3FrameHeaderInfoForGapless(b []byte) (sampleRate, channels, frameLen int, ok bool) {
	if len(b) < 4 {
		return 0, 0, 0, false
	}
	h := binary.BigEndian.Uint32(b)
	if h>>21 != 0x7FF {
		return 0, 0, 0, false
	}
	layer := (h >> 17) & 0x3
	if layer != 0x1 {
		return 0, 0, 0, false
	}
	channelMode := (h >> 6) & 0x3
	channels = 2
	if channelMode == 0x3 {
		channels = 1
	}
	return 0, channels, 0, true
}

func parseXingLAMEGapless(b []byte) (startSamples, endSamples int64, ok bool) {
	if len(b) < 8 {
		return 0, 0, false
	}
	tag := string(b[:4])
	if tag != "Xing" && tag != "Info" {
		return 0, 0, false
	}

	flags := binary.BigEndian.Uint32(b[4:8])
	offset := 8
	if flags&0x1 != 0 {
		offset += 4
	}
	if flags&0x2 != 0 {
		offset += 4
	}
	if flags&0x4 != 0 {
		offset += 100
	}
	if flags&0x8 != 0 {
		offset += 4
	}
	if len(b) < offset+24 {
		return 0, 0, false
	}

	delayPadding := b[offset+21 : offset+24]
	encDelay := int(delayPadding[0])<<4 | int(delayPadding[1]>>4)
	encPadding := int(delayPadding[1]&0x0f)<<8 | int(delayPadding[2])
	if encDelay == 0 && encPadding == 0 {
		return 0, 0, false
	}
	return int64(encDelay), int64(encPadding), true
}
