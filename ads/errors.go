package ads

import (
	"errors"
	"fmt"
)

// Error taxonomy sentinels. Wrap these with fmt.Errorf("...: %w", ErrX) so
// callers can test with errors.Is.
var (
	ErrNotConnected  = errors.New("ads: not connected")
	ErrTimeout       = errors.New("ads: request timed out")
	ErrDisconnected  = errors.New("ads: connection closed")
	ErrProtocol      = errors.New("ads: protocol violation")
	ErrType          = errors.New("ads: type mismatch")
	ErrSymbolNotFound = errors.New("ads: symbol not found")
)

// AdsError represents an error reported by the ADS device itself, either at
// the AMS router level (in the response header) or inside a command's own
// result field.
type AdsError struct {
	Code uint32
}

func (e *AdsError) Error() string {
	return fmt.Sprintf("ADS error 0x%04X: %s", e.Code, adsErrorName(e.Code))
}

// Is lets errors.Is(err, ErrSymbolNotFound) match an AdsError carrying the
// device-symbol-not-found code without callers needing to know the numeric
// code themselves.
func (e *AdsError) Is(target error) bool {
	if target == ErrSymbolNotFound {
		return e.Code == ErrDeviceSymbolNotFound
	}
	return false
}

// Beckhoff ADS return codes (ADSERR_*). Source: TwinCAT ADS documentation.
const (
	ErrNoError               uint32 = 0x0000
	ErrInternal              uint32 = 0x0001
	ErrNoRuntime             uint32 = 0x0002
	ErrAllocLockedMem        uint32 = 0x0003
	ErrInsertMailbox         uint32 = 0x0004
	ErrWrongHMsg             uint32 = 0x0005
	ErrTargetPortNotFound    uint32 = 0x0006
	ErrTargetMachineNotFound uint32 = 0x0007
	ErrUnknownCmdId          uint32 = 0x0008
	ErrBadTaskId             uint32 = 0x0009
	ErrNoIO                  uint32 = 0x000A
	ErrUnknownAmsCmd         uint32 = 0x000B
	ErrWin32Error            uint32 = 0x000C
	ErrPortNotConnected      uint32 = 0x000D
	ErrInvalidAmsLength      uint32 = 0x000E
	ErrInvalidAmsNetId       uint32 = 0x000F
	ErrLowInstLevel          uint32 = 0x0010
	ErrNoDebugInfo           uint32 = 0x0011
	ErrPortDisabled          uint32 = 0x0012
	ErrPortAlreadyConnected  uint32 = 0x0013
	ErrAmsSync               uint32 = 0x0014
	ErrAmsSyncSendError      uint32 = 0x0015
	ErrAmsNoSync             uint32 = 0x0016
	ErrNoIndexMap            uint32 = 0x0017
	ErrInvalidAmsPort        uint32 = 0x0018
	ErrNoMemory              uint32 = 0x0019
	ErrTcpSend               uint32 = 0x001A
	ErrHostUnreachable       uint32 = 0x001B
	ErrInvalidAmsFragment    uint32 = 0x001C
	ErrTlsSend               uint32 = 0x001D
	ErrAccessDenied          uint32 = 0x001E

	// Router errors
	ErrRouterNoLockedMem      uint32 = 0x0500
	ErrRouterResizeMem        uint32 = 0x0501
	ErrRouterMailboxFull      uint32 = 0x0502
	ErrRouterDebugboxFull     uint32 = 0x0503
	ErrRouterUnknownPortType  uint32 = 0x0504
	ErrRouterNotInitialized   uint32 = 0x0505
	ErrRouterPortRemoved      uint32 = 0x0506
	ErrRouterPortNotOpen      uint32 = 0x0507
	ErrRouterPortOpen         uint32 = 0x0508
	ErrRouterPortConnected    uint32 = 0x0509
	ErrRouterPortNotConnected uint32 = 0x050A
	ErrRouterNoSendQueue      uint32 = 0x050B

	// Device/ADS errors
	ErrDeviceError                uint32 = 0x0700
	ErrDeviceSrvNotSupp           uint32 = 0x0701
	ErrDeviceInvalidGrp           uint32 = 0x0702
	ErrDeviceInvalidOffs          uint32 = 0x0703
	ErrDeviceInvalidAccess        uint32 = 0x0704
	ErrDeviceInvalidSize          uint32 = 0x0705
	ErrDeviceInvalidData          uint32 = 0x0706
	ErrDeviceNotReady             uint32 = 0x0707
	ErrDeviceBusy                 uint32 = 0x0708
	ErrDeviceInvalidContext       uint32 = 0x0709
	ErrDeviceNoMemory             uint32 = 0x070A
	ErrDeviceInvalidParam         uint32 = 0x070B
	ErrDeviceNotFound             uint32 = 0x070C
	ErrDeviceSyntax               uint32 = 0x070D
	ErrDeviceIncompatible         uint32 = 0x070E
	ErrDeviceExists               uint32 = 0x070F
	ErrDeviceSymbolNotFound       uint32 = 0x0710
	ErrDeviceSymbolVersionInvalid uint32 = 0x0711
	ErrDeviceInvalidState         uint32 = 0x0712
	ErrDeviceTransModeNotSupp     uint32 = 0x0713
	ErrDeviceNotifyHndInvalid     uint32 = 0x0714
	ErrDeviceClientUnknown        uint32 = 0x0715
	ErrDeviceNoMoreHdls           uint32 = 0x0716
	ErrDeviceInvalidWatchSize     uint32 = 0x0717
	ErrDeviceNotInit              uint32 = 0x0718
	ErrDeviceTimeout              uint32 = 0x0719
	ErrDeviceNoInterface          uint32 = 0x071A
	ErrDeviceInvalidInterface     uint32 = 0x071B
	ErrDeviceInvalidClsId         uint32 = 0x071C
	ErrDeviceInvalidObjId         uint32 = 0x071D
	ErrDevicePending              uint32 = 0x071E
	ErrDeviceAborted              uint32 = 0x071F
	ErrDeviceWarning              uint32 = 0x0720
	ErrDeviceInvalidArrayIdx      uint32 = 0x0721
	ErrDeviceSymbolNotActive      uint32 = 0x0722
	ErrDeviceAccessDenied         uint32 = 0x0723
	ErrDeviceLicenseNotFound      uint32 = 0x0724
	ErrDeviceLicenseExpired       uint32 = 0x0725
	ErrDeviceLicenseExceeded      uint32 = 0x0726
	ErrDeviceLicenseInvalid       uint32 = 0x0727
	ErrDeviceLicenseSystemId      uint32 = 0x0728
	ErrDeviceLicenseNoTimeLimit   uint32 = 0x0729
	ErrDeviceLicenseTime          uint32 = 0x072A
	ErrDeviceLicenseType          uint32 = 0x072B
	ErrDeviceLicensePlatform      uint32 = 0x072C
	ErrDeviceException            uint32 = 0x072D
	ErrDeviceLicenseFile          uint32 = 0x072E
	ErrDeviceInvalidSignature     uint32 = 0x072F
	ErrDeviceCertInvalid          uint32 = 0x0730
	ErrDeviceLicenseOemNotFound   uint32 = 0x0731
	ErrDeviceLicenseRestricted    uint32 = 0x0732
	ErrDeviceLicenseDemoDenied    uint32 = 0x0733
	ErrDeviceInvalidFncId         uint32 = 0x0734
	ErrDeviceOutOfRange           uint32 = 0x0735
	ErrDeviceInvalidAlignment     uint32 = 0x0736
	ErrDeviceLicensePlatformLevel uint32 = 0x0737
	ErrDeviceContextFwd           uint32 = 0x0738
	ErrDevicePortDisabled         uint32 = 0x0739
	ErrDevicePortConnected        uint32 = 0x073A
	ErrDeviceInvalidQualifier     uint32 = 0x073B
	ErrDeviceInvalidMailbox       uint32 = 0x073C

	// Client-side errors, returned locally rather than by the device.
	ErrClientError         uint32 = 0x0740
	ErrClientInvalidParm   uint32 = 0x0741
	ErrClientListEmpty     uint32 = 0x0742
	ErrClientVarUsed       uint32 = 0x0743
	ErrClientDuplInvokeId  uint32 = 0x0744
	ErrClientSyncTimeout   uint32 = 0x0745
	ErrClientW32Error      uint32 = 0x0746
	ErrClientTimeoutInvalid uint32 = 0x0747
	ErrClientPortNotOpen   uint32 = 0x0748
	ErrClientNoAmsAddr     uint32 = 0x0749
	ErrClientSyncInternal  uint32 = 0x0750
	ErrClientAddHash       uint32 = 0x0751
	ErrClientRemoveHash    uint32 = 0x0752
	ErrClientNoMoreSym     uint32 = 0x0753
	ErrClientSyncResInvalid uint32 = 0x0754
	ErrClientSyncPortLocked uint32 = 0x0755
)

var adsErrorNames = map[uint32]string{
	ErrNoError:               "no error",
	ErrInternal:              "internal error",
	ErrNoRuntime:             "no runtime",
	ErrAllocLockedMem:        "failed to allocate locked memory",
	ErrInsertMailbox:         "mailbox full",
	ErrWrongHMsg:             "invalid message handle",
	ErrTargetPortNotFound:    "target port not found",
	ErrTargetMachineNotFound: "target machine not found",
	ErrUnknownCmdId:          "unknown command id",
	ErrBadTaskId:             "invalid task id",
	ErrNoIO:                  "no IO",
	ErrUnknownAmsCmd:         "unknown AMS command",
	ErrWin32Error:            "win32 error",
	ErrPortNotConnected:      "port not connected",
	ErrInvalidAmsLength:      "invalid AMS length",
	ErrInvalidAmsNetId:       "invalid AMS net id",
	ErrLowInstLevel:          "installation level too low",
	ErrNoDebugInfo:           "no debug information available",
	ErrPortDisabled:          "port disabled",
	ErrPortAlreadyConnected:  "port already connected",
	ErrAmsSync:               "AMS sync error",
	ErrAmsSyncSendError:      "AMS sync send error",
	ErrAmsNoSync:             "no AMS sync available",
	ErrNoIndexMap:            "no index map available",
	ErrInvalidAmsPort:        "invalid AMS port",
	ErrNoMemory:              "out of memory",
	ErrTcpSend:               "TCP send failed",
	ErrHostUnreachable:       "host unreachable",
	ErrInvalidAmsFragment:    "invalid AMS fragment",
	ErrTlsSend:               "TLS send failed",
	ErrAccessDenied:          "access denied",

	ErrRouterNoLockedMem:      "router: no locked memory",
	ErrRouterResizeMem:        "router: failed to resize memory",
	ErrRouterMailboxFull:      "router: mailbox full",
	ErrRouterDebugboxFull:     "router: debugbox full",
	ErrRouterUnknownPortType:  "router: unknown port type",
	ErrRouterNotInitialized:   "router: not initialized",
	ErrRouterPortRemoved:      "router: port removed",
	ErrRouterPortNotOpen:      "router: port not open",
	ErrRouterPortOpen:         "router: port already open",
	ErrRouterPortConnected:    "router: port already connected",
	ErrRouterPortNotConnected: "router: port not connected",
	ErrRouterNoSendQueue:      "router: no send queue available",

	ErrDeviceError:                "device error",
	ErrDeviceSrvNotSupp:           "service not supported",
	ErrDeviceInvalidGrp:           "invalid index group",
	ErrDeviceInvalidOffs:          "invalid index offset",
	ErrDeviceInvalidAccess:        "invalid access",
	ErrDeviceInvalidSize:          "invalid size",
	ErrDeviceInvalidData:          "invalid data",
	ErrDeviceNotReady:             "device not ready",
	ErrDeviceBusy:                 "device busy",
	ErrDeviceInvalidContext:       "invalid context",
	ErrDeviceNoMemory:             "out of memory",
	ErrDeviceInvalidParam:         "invalid parameter",
	ErrDeviceNotFound:             "not found",
	ErrDeviceSyntax:               "syntax error",
	ErrDeviceIncompatible:         "incompatible object",
	ErrDeviceExists:               "already exists",
	ErrDeviceSymbolNotFound:       "symbol not found",
	ErrDeviceSymbolVersionInvalid: "symbol version invalid",
	ErrDeviceInvalidState:         "invalid device state",
	ErrDeviceTransModeNotSupp:     "transmission mode not supported",
	ErrDeviceNotifyHndInvalid:     "notification handle invalid",
	ErrDeviceClientUnknown:        "notification client unknown",
	ErrDeviceNoMoreHdls:           "no more handles",
	ErrDeviceInvalidWatchSize:     "invalid notification watch size",
	ErrDeviceNotInit:              "device not initialized",
	ErrDeviceTimeout:              "device timeout",
	ErrDeviceNoInterface:          "no interface available",
	ErrDeviceInvalidInterface:     "invalid interface",
	ErrDeviceInvalidClsId:         "invalid class id",
	ErrDeviceInvalidObjId:         "invalid object id",
	ErrDevicePending:              "request pending",
	ErrDeviceAborted:              "request aborted",
	ErrDeviceWarning:              "device warning",
	ErrDeviceInvalidArrayIdx:      "invalid array index",
	ErrDeviceSymbolNotActive:      "symbol not active",
	ErrDeviceAccessDenied:         "device access denied",
	ErrDeviceLicenseNotFound:      "license not found",
	ErrDeviceLicenseExpired:       "license expired",
	ErrDeviceLicenseExceeded:      "license count exceeded",
	ErrDeviceLicenseInvalid:       "license invalid",
	ErrDeviceLicenseSystemId:      "license system id mismatch",
	ErrDeviceLicenseNoTimeLimit:   "license has no time limit",
	ErrDeviceLicenseTime:         "license time error",
	ErrDeviceLicenseType:         "license type invalid",
	ErrDeviceLicensePlatform:     "license platform mismatch",
	ErrDeviceException:           "device exception",
	ErrDeviceLicenseFile:         "license file error",
	ErrDeviceInvalidSignature:    "invalid license signature",
	ErrDeviceCertInvalid:         "certificate invalid",
	ErrDeviceLicenseOemNotFound:  "OEM license not found",
	ErrDeviceLicenseRestricted:   "license restricted",
	ErrDeviceLicenseDemoDenied:   "demo license denied",
	ErrDeviceInvalidFncId:        "invalid function id",
	ErrDeviceOutOfRange:          "parameter out of range",
	ErrDeviceInvalidAlignment:    "invalid alignment",
	ErrDeviceLicensePlatformLevel: "license platform level invalid",
	ErrDeviceContextFwd:          "context forward failed",
	ErrDevicePortDisabled:        "ADS port disabled",
	ErrDevicePortConnected:       "ADS port already connected",
	ErrDeviceInvalidQualifier:    "invalid accept/reject qualifier",
	ErrDeviceInvalidMailbox:      "invalid mailbox message",

	ErrClientError:          "client: general error",
	ErrClientInvalidParm:    "client: invalid parameter",
	ErrClientListEmpty:      "client: list empty",
	ErrClientVarUsed:        "client: variable still in use",
	ErrClientDuplInvokeId:   "client: duplicate invoke id",
	ErrClientSyncTimeout:    "client: timeout during sync communication",
	ErrClientW32Error:       "client: win32 error during sync communication",
	ErrClientTimeoutInvalid: "client: invalid timeout value",
	ErrClientPortNotOpen:    "client: AMS port not opened",
	ErrClientNoAmsAddr:      "client: no AMS address",
	ErrClientSyncInternal:   "client: internal sync error",
	ErrClientAddHash:        "client: hash table overflow",
	ErrClientRemoveHash:     "client: key not found in hash table",
	ErrClientNoMoreSym:      "client: no symbols left",
	ErrClientSyncResInvalid: "client: invalid sync response",
	ErrClientSyncPortLocked: "client: sync port locked",
}

func adsErrorName(code uint32) string {
	if name, ok := adsErrorNames[code]; ok {
		return name
	}
	return "unknown error"
}
