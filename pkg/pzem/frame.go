package pzem

import (
	"encoding/binary"
	"fmt"
)

// Modbus-RTU framing. The device speaks plain RTU records over a TCP
// stream or UDP datagrams, not MBAP, so frames carry the unit address and
// a trailing CRC16 instead of a transaction header.
const (
	fnReadInputRegisters = 0x04
	fnResetEnergy        = 0x42
	exceptionFlag        = 0x80

	// resetFrameSize covers both the reset request and its acknowledgement:
	// address + function code + CRC16.
	resetFrameSize = 4

	// GeneralAddress is the Peacefair "any device" address, honored by
	// meters regardless of their configured unit address.
	GeneralAddress = 0xF8

	// BroadcastAddress sends without addressing a unit; no reply follows.
	BroadcastAddress = 0x00
)

// crc16 computes the Modbus CRC16 (poly 0xA001, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC appends the frame CRC, low byte first per RTU convention.
func appendCRC(frame []byte) []byte {
	crc := crc16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

func verifyCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	want := binary.LittleEndian.Uint16(frame[len(frame)-2:])
	return crc16(frame[:len(frame)-2]) == want
}

func buildReadRequest(unit byte, start, count uint16) []byte {
	frame := make([]byte, 6, 8)
	frame[0] = unit
	frame[1] = fnReadInputRegisters
	binary.BigEndian.PutUint16(frame[2:4], start)
	binary.BigEndian.PutUint16(frame[4:6], count)
	return appendCRC(frame)
}

// buildResetRequest builds the vendor reset command: empty payload, the
// whole frame is address + function code + CRC.
func buildResetRequest(addr byte) []byte {
	return appendCRC([]byte{addr, fnResetEnergy})
}

// parseReadResponse validates a complete read-input-registers response
// frame and returns the register values.
func parseReadResponse(frame []byte, unit byte, count uint16) ([]uint16, error) {
	if len(frame) < 5 {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("short frame (%d bytes)", len(frame))}
	}
	if !verifyCRC(frame) {
		return nil, &MalformedResponseError{Reason: "CRC mismatch"}
	}
	if frame[0] != unit {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("unit address mismatch: got 0x%02X want 0x%02X", frame[0], unit)}
	}
	if frame[1] == fnReadInputRegisters|exceptionFlag {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("exception response, code 0x%02X", frame[2])}
	}
	if frame[1] != fnReadInputRegisters {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("unexpected function code 0x%02X", frame[1])}
	}
	byteCount := int(frame[2])
	if byteCount != int(count)*2 {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("register count mismatch: got %d bytes want %d", byteCount, count*2)}
	}
	if len(frame) != 3+byteCount+2 {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("frame length %d does not match byte count %d", len(frame), byteCount)}
	}
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(frame[3+2*i:])
	}
	return regs, nil
}

// parseResetResponse validates the fixed-size reset acknowledgement.
func parseResetResponse(frame []byte, addr byte) error {
	if len(frame) != resetFrameSize {
		return &MalformedResponseError{Reason: fmt.Sprintf("reset ack length %d, want %d", len(frame), resetFrameSize)}
	}
	if !verifyCRC(frame) {
		return &MalformedResponseError{Reason: "reset ack CRC mismatch"}
	}
	if frame[0] != addr {
		return &MalformedResponseError{Reason: fmt.Sprintf("reset ack address mismatch: got 0x%02X want 0x%02X", frame[0], addr)}
	}
	if frame[1] != fnResetEnergy {
		return &MalformedResponseError{Reason: fmt.Sprintf("reset ack function code 0x%02X", frame[1])}
	}
	return nil
}
