package errs

// Error families. A family code is registered as the parent of its members so
// errors.Is(err, ErrAuth) matches any authentication failure.
const (
	AuthFailed         = 1000
	MissingCredential  = 1001
	InvalidCredential  = 1002
	ExpiredCredential  = 1003
	InactiveMember     = 1004
	SendFailed         = 2000
	RoomNotFound       = 2001
	RoomInactive       = 2002
	Unauthenticated    = 2003
	StorageFailure     = 2004
	EmptyText          = 2005
	UnknownMessageType = 2006
	DailyLimitExceeded = 2007
	DeleteFailed       = 3000
	MessageNotFound    = 3001
	Forbidden          = 3002
	FrameFailed        = 4000
	MalformedFrame     = 4001
	UnsupportedFrame   = 4002
	ArgsError          = 4003

	ServerInternalError = 5000
)

var (
	ErrAuth              = NewCodeError(AuthFailed, "authentication failed")
	ErrMissingCredential = NewCodeError(MissingCredential, "missing credential")
	ErrInvalidCredential = NewCodeError(InvalidCredential, "invalid credential")
	ErrExpiredCredential = NewCodeError(ExpiredCredential, "credential expired")
	ErrInactiveMember    = NewCodeError(InactiveMember, "member is not active")

	ErrSend               = NewCodeError(SendFailed, "send failed")
	ErrRoomNotFound       = NewCodeError(RoomNotFound, "room not found")
	ErrRoomInactive       = NewCodeError(RoomInactive, "room inactive")
	ErrUnauthenticated    = NewCodeError(Unauthenticated, "unauthenticated")
	ErrStorageFailure     = NewCodeError(StorageFailure, "storage failure")
	ErrEmptyText          = NewCodeError(EmptyText, "message text is empty")
	ErrUnknownMessageType = NewCodeError(UnknownMessageType, "unknown message type")
	ErrDailyLimitExceeded = NewCodeError(DailyLimitExceeded, "daily message limit exceeded")

	ErrDelete          = NewCodeError(DeleteFailed, "delete failed")
	ErrMessageNotFound = NewCodeError(MessageNotFound, "message not found")
	ErrForbidden       = NewCodeError(Forbidden, "forbidden")

	ErrFrame            = NewCodeError(FrameFailed, "bad frame")
	ErrMalformedFrame   = NewCodeError(MalformedFrame, "malformed frame")
	ErrUnsupportedFrame = NewCodeError(UnsupportedFrame, "unsupported frame type")
	ErrArgs             = NewCodeError(ArgsError, "invalid arguments")

	ErrInternalServer = NewCodeError(ServerInternalError, "server internal error")
)

func init() {
	families := map[int][]int{
		AuthFailed:   {MissingCredential, InvalidCredential, ExpiredCredential, InactiveMember},
		SendFailed:   {RoomNotFound, RoomInactive, Unauthenticated, StorageFailure, EmptyText, UnknownMessageType, DailyLimitExceeded},
		DeleteFailed: {MessageNotFound, Forbidden},
		FrameFailed:  {MalformedFrame, UnsupportedFrame, ArgsError},
	}
	for parent, children := range families {
		for _, child := range children {
			_ = DefaultCodeRelation.Add(parent, child)
		}
	}
}
