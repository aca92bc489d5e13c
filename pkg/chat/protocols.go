package chat

const (
	// InstancePrefix starts every advertised instance name.
	InstancePrefix = "lanchat-"

	// Frame outcomes for lanchat_frames_total.
	resultOK          = "ok"
	resultMalformed   = "malformed"
	resultDecrypt     = "decrypt_failed"
	resultUndecodable = "undecodable"
	resultIOError     = "io_error"

	// Send outcomes for lanchat_sends_total.
	sendOK     = "ok"
	sendFailed = "failed"
)
