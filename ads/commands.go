package ads

import (
	"context"
	"encoding/binary"
	"fmt"
)

// deviceInfoResult is the ReadDeviceInfo response payload.
type deviceInfoResult struct {
	MajorVersion uint8
	MinorVersion uint8
	BuildVersion uint16
	DeviceName   string
}

func cmdReadDeviceInfo(ctx context.Context, s *session) (deviceInfoResult, error) {
	resp, err := s.sendCommand(ctx, CmdReadDeviceInfo, nil)
	if err != nil {
		return deviceInfoResult{}, err
	}
	if len(resp) < 4+4+16 {
		return deviceInfoResult{}, fmt.Errorf("%w: short ReadDeviceInfo response", ErrProtocol)
	}
	// resp[0:4] is the command's own result code, already checked by the
	// caller via the AMS header error code for most devices, but some
	// routers only set it here.
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return deviceInfoResult{}, &AdsError{Code: result}
	}
	info := deviceInfoResult{
		MajorVersion: resp[4],
		MinorVersion: resp[5],
		BuildVersion: binary.LittleEndian.Uint16(resp[6:8]),
	}
	name := resp[8:]
	if idx := indexByte(name, 0); idx >= 0 {
		name = name[:idx]
	}
	info.DeviceName = string(name)
	return info, nil
}

// cmdRead issues an ADS Read against an index group/offset pair.
func cmdRead(ctx context.Context, s *session, indexGroup, indexOffset uint32, length uint32) ([]byte, error) {
	req := make([]byte, 12)
	binary.LittleEndian.PutUint32(req[0:4], indexGroup)
	binary.LittleEndian.PutUint32(req[4:8], indexOffset)
	binary.LittleEndian.PutUint32(req[8:12], length)

	resp, err := s.sendCommand(ctx, CmdRead, req)
	if err != nil {
		return nil, err
	}
	if len(resp) < 8 {
		return nil, fmt.Errorf("%w: short Read response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return nil, &AdsError{Code: result}
	}
	dataLen := binary.LittleEndian.Uint32(resp[4:8])
	if uint32(len(resp)-8) < dataLen {
		return nil, fmt.Errorf("%w: Read data length mismatch", ErrProtocol)
	}
	return resp[8 : 8+dataLen], nil
}

// cmdWrite issues an ADS Write against an index group/offset pair.
func cmdWrite(ctx context.Context, s *session, indexGroup, indexOffset uint32, data []byte) error {
	req := make([]byte, 12+len(data))
	binary.LittleEndian.PutUint32(req[0:4], indexGroup)
	binary.LittleEndian.PutUint32(req[4:8], indexOffset)
	binary.LittleEndian.PutUint32(req[8:12], uint32(len(data)))
	copy(req[12:], data)

	resp, err := s.sendCommand(ctx, CmdWrite, req)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return fmt.Errorf("%w: short Write response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return &AdsError{Code: result}
	}
	return nil
}

// cmdReadWrite issues an ADS ReadWrite: write writeData, then read back up
// to readLen bytes. Used for symbol lookups and every sum command.
func cmdReadWrite(ctx context.Context, s *session, indexGroup, indexOffset uint32, readLen uint32, writeData []byte) ([]byte, error) {
	req := make([]byte, 16+len(writeData))
	binary.LittleEndian.PutUint32(req[0:4], indexGroup)
	binary.LittleEndian.PutUint32(req[4:8], indexOffset)
	binary.LittleEndian.PutUint32(req[8:12], readLen)
	binary.LittleEndian.PutUint32(req[12:16], uint32(len(writeData)))
	copy(req[16:], writeData)

	resp, err := s.sendCommand(ctx, CmdReadWrite, req)
	if err != nil {
		return nil, err
	}
	if len(resp) < 8 {
		return nil, fmt.Errorf("%w: short ReadWrite response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return nil, &AdsError{Code: result}
	}
	dataLen := binary.LittleEndian.Uint32(resp[4:8])
	if uint32(len(resp)-8) < dataLen {
		return nil, fmt.Errorf("%w: ReadWrite data length mismatch", ErrProtocol)
	}
	return resp[8 : 8+dataLen], nil
}

// cmdReadState issues an ADS ReadState, returning (adsState, deviceState).
func cmdReadState(ctx context.Context, s *session) (uint16, uint16, error) {
	resp, err := s.sendCommand(ctx, CmdReadState, nil)
	if err != nil {
		return 0, 0, err
	}
	if len(resp) < 8 {
		return 0, 0, fmt.Errorf("%w: short ReadState response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return 0, 0, &AdsError{Code: result}
	}
	return binary.LittleEndian.Uint16(resp[4:6]), binary.LittleEndian.Uint16(resp[6:8]), nil
}

// cmdWriteControl issues an ADS WriteControl, e.g. to switch the device to RUN/STOP.
func cmdWriteControl(ctx context.Context, s *session, adsState, deviceState uint16, data []byte) error {
	req := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint16(req[0:2], adsState)
	binary.LittleEndian.PutUint16(req[2:4], deviceState)
	binary.LittleEndian.PutUint32(req[4:8], uint32(len(data)))
	copy(req[8:], data)

	resp, err := s.sendCommand(ctx, CmdWriteControl, req)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return fmt.Errorf("%w: short WriteControl response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return &AdsError{Code: result}
	}
	return nil
}

// notificationAttributes configures an AddDeviceNotification request.
type notificationAttributes struct {
	Length        uint32
	TransMode     uint32
	MaxDelayMs    uint32
	CycleTimeMs   uint32
}

// cmdAddDeviceNotification registers a notification and returns its server-assigned handle.
func cmdAddDeviceNotification(ctx context.Context, s *session, indexGroup, indexOffset uint32, attrs notificationAttributes) (uint32, error) {
	req := make([]byte, 40)
	binary.LittleEndian.PutUint32(req[0:4], indexGroup)
	binary.LittleEndian.PutUint32(req[4:8], indexOffset)
	binary.LittleEndian.PutUint32(req[8:12], attrs.Length)
	binary.LittleEndian.PutUint32(req[12:16], attrs.TransMode)
	binary.LittleEndian.PutUint32(req[16:20], attrs.MaxDelayMs*10000)
	binary.LittleEndian.PutUint32(req[20:24], attrs.CycleTimeMs*10000)
	// 16 reserved bytes follow, already zeroed.

	resp, err := s.sendCommand(ctx, CmdAddDeviceNotify, req)
	if err != nil {
		return 0, err
	}
	if len(resp) < 8 {
		return 0, fmt.Errorf("%w: short AddDeviceNotification response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return 0, &AdsError{Code: result}
	}
	return binary.LittleEndian.Uint32(resp[4:8]), nil
}

func cmdDeleteDeviceNotification(ctx context.Context, s *session, handle uint32) error {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req[0:4], handle)

	resp, err := s.sendCommand(ctx, CmdDeleteDeviceNotify, req)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return fmt.Errorf("%w: short DeleteDeviceNotification response", ErrProtocol)
	}
	result := binary.LittleEndian.Uint32(resp[0:4])
	if result != 0 {
		return &AdsError{Code: result}
	}
	return nil
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}
