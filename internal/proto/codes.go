package proto

// ResultCode is a generic server protocol result.
type ResultCode int

// Result codes returned from channel config and weekly schedule handlers.
const (
	ResultCodeNone                   ResultCode = 0
	ResultCodeUnsupported            ResultCode = 1
	ResultCodeFalse                  ResultCode = 2
	ResultCodeTrue                   ResultCode = 3
	ResultCodeTemporarilyUnavailable ResultCode = 4
	ResultCodeBadCredentials         ResultCode = 5
	ResultCodeDataError              ResultCode = 36
	ResultCodeIDNotExists            ResultCode = 37
)

var resultCodeNames = map[ResultCode]string{
	ResultCodeNone:                   "none",
	ResultCodeUnsupported:            "unsupported",
	ResultCodeFalse:                  "false",
	ResultCodeTrue:                   "true",
	ResultCodeTemporarilyUnavailable: "temporarily_unavailable",
	ResultCodeBadCredentials:         "bad_credentials",
	ResultCodeDataError:              "data_error",
	ResultCodeIDNotExists:            "id_not_exists",
}

// String returns a lowercase name for the code.
func (c ResultCode) String() string {
	if s, ok := resultCodeNames[c]; ok {
		return s
	}
	return "unknown"
}

// CalCfgResult is the outcome of a calibration/config (CALCFG) command.
type CalCfgResult int

// CALCFG results.
const (
	CalCfgResultFalse               CalCfgResult = 0
	CalCfgResultTrue                CalCfgResult = 1
	CalCfgResultDone                CalCfgResult = 2
	CalCfgResultInProgress          CalCfgResult = 3
	CalCfgResultNodeFound           CalCfgResult = 4
	CalCfgResultSenderConflict      CalCfgResult = 100
	CalCfgResultTimeout             CalCfgResult = 101
	CalCfgResultNotSupported        CalCfgResult = 102
	CalCfgResultIDNotExists         CalCfgResult = 103
	CalCfgResultUnauthorized        CalCfgResult = 104
	CalCfgResultDebug               CalCfgResult = 105
	CalCfgResultNotSupportedInSlave CalCfgResult = 106
)

var calCfgResultNames = map[CalCfgResult]string{
	CalCfgResultFalse:               "false",
	CalCfgResultTrue:                "true",
	CalCfgResultDone:                "done",
	CalCfgResultInProgress:          "in_progress",
	CalCfgResultNodeFound:           "node_found",
	CalCfgResultSenderConflict:      "sender_conflict",
	CalCfgResultTimeout:             "timeout",
	CalCfgResultNotSupported:        "not_supported",
	CalCfgResultIDNotExists:         "id_not_exists",
	CalCfgResultUnauthorized:        "unauthorized",
	CalCfgResultDebug:               "debug",
	CalCfgResultNotSupportedInSlave: "not_supported_in_slave",
}

// String returns a lowercase name for the result.
func (r CalCfgResult) String() string {
	if s, ok := calCfgResultNames[r]; ok {
		return s
	}
	return "unknown"
}

// Device-level CALCFG commands handled by the orchestrator itself.
const (
	CalCfgCmdEnterConfigMode int32 = 2000
	CalCfgCmdCheckFirmware   int32 = 2001
	CalCfgCmdRestartDevice   int32 = 2002
)

// ReplyAction tells the protocol layer how to answer a new-value request.
type ReplyAction int

const (
	// ReplySuppress sends nothing back.
	ReplySuppress ReplyAction = -1
	// ReplyFailure reports the value as rejected.
	ReplyFailure ReplyAction = 0
	// ReplySuccess reports the value as applied.
	ReplySuccess ReplyAction = 1
)

// Device config fields, used as bits of the 64-bit change mask broadcast to
// elements.
const (
	DeviceConfigFieldStatusLED            uint64 = 1 << 0
	DeviceConfigFieldScreenBrightness     uint64 = 1 << 1
	DeviceConfigFieldButtonVolume         uint64 = 1 << 2
	DeviceConfigFieldDisableUserInterface uint64 = 1 << 3
	DeviceConfigFieldAutomaticTimeSync    uint64 = 1 << 4
	DeviceConfigFieldHomeScreenOffDelay   uint64 = 1 << 5
	DeviceConfigFieldHomeScreenContent    uint64 = 1 << 6
)

// Sizes fixed by the server protocol.
const (
	ServerNameMaxSize   = 65
	MQTTUsernameMaxSize = 256
	MQTTPasswordMaxSize = 256
	ChannelValueSize    = 8
)
