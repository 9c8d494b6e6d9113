package engine

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"

	"replkv/internal/model"
)

const (
	checksumBytes = 4
	lengthBytes   = 8
	headerBytes   = checksumBytes + lengthBytes
	opTypeBytes   = 1
	lenFieldSize  = 4

	// maxPayloadBytes bounds the length field: snappy never emits a block
	// longer than this, so a larger length can only come from a damaged header.
	maxPayloadBytes = 0xffffffff
)

/*
Return the encoded log record for a Command. The record layout is:

| CRC32   | PayloadLength | Payload                      |
|---------|---------------|------------------------------|
| 4 bytes | 8 bytes       | snappy(encodeCommand(cmd))   |

The checksum covers the compressed payload bytes exactly as stored, so a
record can be verified before it is decompressed. All integers are little-endian.
*/
func encodeRecord(cmd model.Command) []byte {
	payload := snappy.Encode(nil, encodeCommand(cmd))

	record := make([]byte, headerBytes+len(payload))
	binary.LittleEndian.PutUint32(record[0:checksumBytes], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint64(record[checksumBytes:headerBytes], uint64(len(payload)))
	copy(record[headerBytes:], payload)
	return record
}

// encodeCommand serializes a Command before compression:
//
//	| OpType | KeyLen  | Key     | ValueLen | Value   |
//	| 1 byte | 4 bytes | K bytes | 4 bytes  | V bytes |
func encodeCommand(cmd model.Command) []byte {
	buf := make([]byte, 0, opTypeBytes+lenFieldSize+len(cmd.Key)+lenFieldSize+len(cmd.Value))
	buf = append(buf, byte(cmd.Op))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cmd.Key)))
	buf = append(buf, cmd.Key...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cmd.Value)))
	buf = append(buf, cmd.Value...)
	return buf
}

// decodePayload decompresses a verified payload and decodes the Command in it.
func decodePayload(payload []byte) (model.Command, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return model.Command{}, fmt.Errorf("decompress: %w", err)
	}
	return decodeCommand(raw)
}

func decodeCommand(raw []byte) (model.Command, error) {
	minSize := opTypeBytes + lenFieldSize + lenFieldSize
	if len(raw) < minSize {
		return model.Command{}, fmt.Errorf("command too short: %d bytes (minimum %d)", len(raw), minSize)
	}

	pos := 0
	op := model.OpsType(raw[pos])
	if op != model.SET && op != model.REMOVE {
		return model.Command{}, fmt.Errorf("invalid operation type: %d", op)
	}
	pos += opTypeBytes

	keyLen := int(binary.LittleEndian.Uint32(raw[pos:]))
	pos += lenFieldSize
	if keyLen > len(raw)-pos-lenFieldSize {
		return model.Command{}, fmt.Errorf("key length (%d) exceeds command bounds", keyLen)
	}
	key := string(raw[pos : pos+keyLen])
	pos += keyLen

	valueLen := int(binary.LittleEndian.Uint32(raw[pos:]))
	pos += lenFieldSize
	if valueLen != len(raw)-pos {
		return model.Command{}, fmt.Errorf("value length (%d) does not match command bounds (%d)", valueLen, len(raw)-pos)
	}
	value := string(raw[pos:])

	return model.Command{Op: op, Key: key, Value: value}, nil
}
