// Package ads implements the Beckhoff ADS (Automation Device Specification)
// protocol for communicating with TwinCAT PLCs over AMS/TCP.
package ads

// ADS TCP Header (6 bytes)
// The AMS/TCP header wraps all ADS communication over TCP.
type tcpHeader struct {
	Reserved uint16 // Always 0
	Length   uint32 // Length of AMS header + data
}

// AMS Header (32 bytes)
// Every ADS command has an AMS header identifying source/target and command.
type amsHeader struct {
	TargetNetId AmsNetId // Target AMS Net ID
	TargetPort  uint16   // Target AMS port
	SourceNetId AmsNetId // Source AMS Net ID
	SourcePort  uint16   // Source AMS port
	CommandId   uint16   // ADS command ID
	StateFlags  uint16   // State flags (request/response, etc.)
	DataLength  uint32   // Length of ADS data following header
	ErrorCode   uint32   // ADS error code (0 = success)
	InvokeId    uint32   // Invoke ID for matching request/response
}

const amsHeaderSize = 32
const tcpHeaderSize = 6

// AMS/TCP header commands. These occupy the same 2-byte field decodeFrame
// treats as "reserved, always 0" for ordinary ADS command frames; a router
// registration handshake is the one case that field carries a real command.
const (
	AmsTcpCmdAmsCommand  uint16 = 0x0000 // ordinary ADS command frame
	AmsTcpCmdPortConnect uint16 = 0x0001 // register with the router, get assigned NetId/port
	AmsTcpCmdPortClose   uint16 = 0x0002 // unregister
)

// ADS Command IDs
const (
	CmdReadDeviceInfo     uint16 = 0x0001
	CmdRead               uint16 = 0x0002
	CmdWrite              uint16 = 0x0003
	CmdReadState          uint16 = 0x0004
	CmdWriteControl       uint16 = 0x0005
	CmdAddDeviceNotify    uint16 = 0x0006
	CmdDeleteDeviceNotify uint16 = 0x0007
	CmdDeviceNotification uint16 = 0x0008
	CmdReadWrite          uint16 = 0x0009
)

// ADS State Flags
const (
	StateFlagRequest  uint16 = 0x0004 // This is a request
	StateFlagResponse uint16 = 0x0005 // This is a response (request | 0x0001)
)

// ADS Index Groups for symbol and data type access.
const (
	IndexGroupSymbolTable          uint32 = 0xF000 // Symbol table
	IndexGroupSymbolName           uint32 = 0xF001 // Symbol name
	IndexGroupSymbolValue          uint32 = 0xF002 // Symbol value
	IndexGroupSymbolHandleByName   uint32 = 0xF003 // Get handle by symbol name
	IndexGroupSymbolValueByName    uint32 = 0xF004 // Read value by symbol name
	IndexGroupSymbolValueByHandle  uint32 = 0xF005 // Read/write value by handle
	IndexGroupSymbolReleaseHandle  uint32 = 0xF006 // Release handle
	IndexGroupSymbolInfoByName     uint32 = 0xF007 // Get symbol info by name
	IndexGroupSymbolVersion        uint32 = 0xF008 // Symbol version
	IndexGroupSymbolInfoByNameEx   uint32 = 0xF009 // Extended symbol info by name
	IndexGroupDataTypeInfoByNameEx uint32 = 0xF00A // Data type info by name
	IndexGroupSymbolUpload         uint32 = 0xF00B // Upload symbol table
	IndexGroupSymbolUploadInfo     uint32 = 0xF00C // Upload symbol info (count, size)
	IndexGroupSymNote              uint32 = 0xF00D // Notification of named handle
	IndexGroupDataTypeUpload       uint32 = 0xF00E // Upload data types
	IndexGroupSymbolUploadInfo2    uint32 = 0xF00F // Upload symbol info v2
	IndexGroupSymDataTypeUpload    uint32 = 0xF010 // Upload data type table
	IndexGroupSumCommandRead       uint32 = 0xF080 // Sum-command read
	IndexGroupSumCommandWrite      uint32 = 0xF081 // Sum-command write
	IndexGroupSumCommandReadEx     uint32 = 0xF082 // Sum-command read (extended, e.g. create handles)
	IndexGroupSumCommandReadEx2    uint32 = 0xF083 // Sum-command read (extended v2, e.g. release handles)
	IndexGroupSumCommandReadWrite  uint32 = 0xF084 // Sum-command read/write
)

// ADS well-known ports.
const (
	PortLogger        uint16 = 100   // Logger
	PortEventLog      uint16 = 110   // Event log
	PortIO            uint16 = 300   // I/O
	PortNC            uint16 = 500   // NC
	PortPLC1          uint16 = 801   // TwinCAT 2 PLC Runtime 1
	PortPLC2          uint16 = 811   // TwinCAT 2 PLC Runtime 2
	PortTC3PLC1       uint16 = 851   // TwinCAT 3 PLC Runtime 1
	PortTC3PLC2       uint16 = 852   // TwinCAT 3 PLC Runtime 2
	PortCamshaft      uint16 = 900   // Camshaft controller
	PortSystemService uint16 = 10000 // System service
)

// DefaultTCPPort is the AMS/TCP port TwinCAT routers listen on.
const DefaultTCPPort = 48898

// ADS device states, as reported by ReadState / carried in WriteControl.
const (
	AdsStateInvalid uint16 = 0
	AdsStateIdle    uint16 = 1
	AdsStateReset   uint16 = 2
	AdsStateInit    uint16 = 3
	AdsStateStart   uint16 = 4
	AdsStateRun     uint16 = 5
	AdsStateStop    uint16 = 6
	AdsStateSaveCfg uint16 = 7
	AdsStateLoadCfg uint16 = 8
	AdsStatePowerFailure uint16 = 9
	AdsStatePowerGood    uint16 = 10
	AdsStateError        uint16 = 11
	AdsStateShutdown     uint16 = 12
)

// Notification transmission modes, used by AddDeviceNotification.
const (
	AdsTransModeNone          uint32 = 0
	AdsTransModeClientCycle   uint32 = 1
	AdsTransModeClientOnChange uint32 = 2
	AdsTransModeCyclic        uint32 = 3
	AdsTransModeOnChange      uint32 = 4
	AdsTransModeCyclicInContext  uint32 = 5
	AdsTransModeOnChangeInContext uint32 = 6
)
