package dhgripper

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Modbus function codes used by the gripper.
const (
	funcReadHolding = 0x03
	funcWriteSingle = 0x06
	exceptionFlag   = 0x80
)

// Frame sizes: write request and echo are both 8 bytes; a one-register read
// answers with id, func, byte count, two data bytes and the CRC.
const (
	writeFrameLen    = 8
	readRequestLen   = 8
	readResponseLen  = 7
	exceptionRespLen = 5
)

// ModbusException is a device-side error response.
type ModbusException struct {
	Function byte
	Code     byte
}

func (e *ModbusException) Error() string {
	return fmt.Sprintf("modbus exception 0x%02x on function 0x%02x", e.Code, e.Function)
}

// crc16 is CRC-16/MODBUS (poly 0xA001 reflected, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(frame []byte) []byte {
	return binary.LittleEndian.AppendUint16(frame, crc16(frame))
}

func checkCRC(frame []byte) error {
	if len(frame) < 3 {
		return errors.New("modbus frame too short")
	}
	body := frame[:len(frame)-2]
	got := binary.LittleEndian.Uint16(frame[len(frame)-2:])
	if want := crc16(body); got != want {
		return errors.Errorf("modbus crc mismatch: got 0x%04x want 0x%04x", got, want)
	}
	return nil
}

// writeRequest builds a "write single register" frame.
func writeRequest(id byte, reg, value uint16) []byte {
	frame := make([]byte, 0, writeFrameLen)
	frame = append(frame, id, funcWriteSingle)
	frame = binary.BigEndian.AppendUint16(frame, reg)
	frame = binary.BigEndian.AppendUint16(frame, value)
	return appendCRC(frame)
}

// readRequest builds a "read holding registers" frame for one register.
func readRequest(id byte, reg uint16) []byte {
	frame := make([]byte, 0, readRequestLen)
	frame = append(frame, id, funcReadHolding)
	frame = binary.BigEndian.AppendUint16(frame, reg)
	frame = binary.BigEndian.AppendUint16(frame, 1)
	return appendCRC(frame)
}

// checkException returns a *ModbusException when resp is an exception frame.
func checkException(id, fn byte, resp []byte) error {
	if len(resp) < exceptionRespLen || resp[0] != id || resp[1] != fn|exceptionFlag {
		return nil
	}
	if err := checkCRC(resp[:exceptionRespLen]); err != nil {
		return err
	}
	return &ModbusException{Function: fn, Code: resp[2]}
}

// parseWriteEcho verifies that resp echoes req.
func parseWriteEcho(req, resp []byte) error {
	if err := checkException(req[0], funcWriteSingle, resp); err != nil {
		return err
	}
	if len(resp) != writeFrameLen {
		return errors.Errorf("modbus write echo has %d bytes, want %d", len(resp), writeFrameLen)
	}
	if err := checkCRC(resp); err != nil {
		return err
	}
	for i := range req {
		if req[i] != resp[i] {
			return errors.Errorf("modbus write echo % x does not match request % x", resp, req)
		}
	}
	return nil
}

// parseReadResponse extracts the single register value from resp.
func parseReadResponse(id byte, resp []byte) (uint16, error) {
	if err := checkException(id, funcReadHolding, resp); err != nil {
		return 0, err
	}
	if len(resp) != readResponseLen {
		return 0, errors.Errorf("modbus read response has %d bytes, want %d", len(resp), readResponseLen)
	}
	if err := checkCRC(resp); err != nil {
		return 0, err
	}
	if resp[0] != id || resp[1] != funcReadHolding || resp[2] != 2 {
		return 0, errors.Errorf("unexpected modbus read header % x", resp[:3])
	}
	return binary.BigEndian.Uint16(resp[3:5]), nil
}
