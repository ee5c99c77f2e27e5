package protocol

// Client -> server payloads.

// LoginType selects the credential scheme for CmdLogin.
type LoginType int

const (
	LoginGuest LoginType = 0
	LoginToken LoginType = 1 // reconnect with a previously issued session token
)

type LoginRequest struct {
	LoginType  LoginType `json:"loginType"`
	Credential string    `json:"credential"`
}

type CreateTableRequest struct {
	Bet        int64 `json:"bet"`
	PlayerMode int   `json:"playerMode"` // 2 solo, 4 duo
	PointMode  int   `json:"pointMode"`  // 11 or 21 human points
	IsPrivate  bool  `json:"isPrivate"`
}

type JoinTableRequest struct {
	MatchID int64 `json:"matchId"`
}

type PlayCardRequest struct {
	CardID int `json:"cardId"`
}

type RegisterLeaveRequest struct {
	// Status 0 registers a leave at the next game boundary, 1 cancels
	// a previous registration.
	Status int `json:"status"`
}

type ChatMessageRequest struct {
	Message string `json:"message"`
}

type ChatEmoticonRequest struct {
	EmoticonID int `json:"emoticonId"`
}

type CheatGoldRequest struct {
	Gold int64 `json:"gold"`
}

// Server -> client payloads.

type LoginResponse struct {
	OK           bool   `json:"ok"`
	UserID       int64  `json:"userId,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

type CreateGuestResponse struct {
	Credential string `json:"credential"`
	UserID     int64  `json:"userId"`
}

// GeneralInfo is pushed once after login with the table configuration
// clients need to render the lobby.
type GeneralInfo struct {
	MinGoldPlay      int64   `json:"minGoldPlay"`
	TurnTimeSeconds  int     `json:"turnTimeSeconds"`
	BetMultiplierMin int64   `json:"betMultiplierMin"`
	Bets             []int64 `json:"bets"`
	Timestamp        int64   `json:"timestamp"`
}

type UserInfo struct {
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	Gold     int64  `json:"gold"`
	Level    int    `json:"level"`
	Exp      int64  `json:"exp"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Avatar   string `json:"avatar"`
}

// SeatInfo describes one seat inside a GameInfo snapshot.
type SeatInfo struct {
	Occupied  bool   `json:"occupied"`
	UserID    int64  `json:"userId,omitempty"`
	Name      string `json:"name,omitempty"`
	Gold      int64  `json:"gold,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
	Team      int    `json:"team,omitempty"`
	HandSize  int    `json:"handSize"`
	Connected bool   `json:"connected"`
}

// GameInfo is the full table snapshot; it is the only reconnect
// mechanism, so it must be complete.
type GameInfo struct {
	MatchID      int64      `json:"matchId"`
	State        string     `json:"state"`
	PlayerMode   int        `json:"playerMode"`
	PointMode    int        `json:"pointMode"`
	Bet          int64      `json:"bet"`
	Pot          int64      `json:"pot"`
	Seats        []SeatInfo `json:"seats"`
	MyCards      []int      `json:"myCards"`
	Trick        []int      `json:"trick"`
	CurrentTurn  int        `json:"currentTurn"` // -1 between tricks
	TeamScores   []int      `json:"teamScores"`
	Round        int        `json:"round"`
	RemainCards  int        `json:"remainCards"`
	TurnDeadline int64      `json:"turnDeadline,omitempty"` // unix millis
}

type NewUserJoinMatch struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Gold   int64  `json:"gold"`
	Seat   int    `json:"seat"`
	Bot    bool   `json:"bot"`
}

type UserLeaveMatch struct {
	UserID int64 `json:"userId"`
	Seat   int   `json:"seat"`
}

type PrepareStart struct {
	CountdownMS int64 `json:"countdownMs"`
}

type StartGame struct {
	MatchID int64 `json:"matchId"`
	Pot     int64 `json:"pot"`
}

type DealCard struct {
	Cards       []int `json:"cards"`
	RemainCards int   `json:"remainCards"`
	FirstTurn   int   `json:"firstTurn"`
}

type DrawCard struct {
	// Card is only set on the drawing player's own frame; others see
	// the seat draw face down.
	Seat        int `json:"seat"`
	Card        int `json:"card,omitempty"`
	RemainCards int `json:"remainCards"`
}

type NewTurn struct {
	Seat         int   `json:"seat"`
	TurnDeadline int64 `json:"turnDeadline"` // unix millis
}

type PlayCardEvent struct {
	UserID int64 `json:"userId"`
	Seat   int   `json:"seat"`
	CardID int   `json:"cardId"`
	Auto   bool  `json:"auto,omitempty"`
}

type EndTrick struct {
	WinnerSeat int   `json:"winnerSeat"`
	WinCard    int   `json:"winCard"`
	Points     int   `json:"points"`
	TeamScores []int `json:"teamScores"`
	LastTrick  bool  `json:"lastTrick"`
}

type EndRound struct {
	Round      int   `json:"round"`
	TeamScores []int `json:"teamScores"`
	Pot        int64 `json:"pot"`
}

// EndGameSeat reports one seat's settlement.
type EndGameSeat struct {
	UserID    int64 `json:"userId"`
	Team      int   `json:"team"`
	GoldDelta int64 `json:"goldDelta"`
	Gold      int64 `json:"gold"`
	ExpGain   int64 `json:"expGain"`
}

type EndGame struct {
	WinnerTeam int           `json:"winnerTeam"`
	TeamScores []int         `json:"teamScores"`
	Pot        int64         `json:"pot"`
	Seats      []EndGameSeat `json:"seats"`
}

type NapoliEvent struct {
	Seat  int   `json:"seat"`
	Team  int   `json:"team"`
	Suits []int `json:"suits"`
	Bonus int   `json:"bonus"`
}

type UpdateMoney struct {
	Gold int64 `json:"gold"`
}

type TableEntry struct {
	MatchID    int64 `json:"matchId"`
	Bet        int64 `json:"bet"`
	PlayerMode int   `json:"playerMode"`
	NumPlayers int   `json:"numPlayers"`
}

type TableList struct {
	Tables []TableEntry `json:"tables"`
}

type JoinTableResult struct {
	ErrorCode string `json:"errorCode,omitempty"`
	MatchID   int64  `json:"matchId,omitempty"`
}

type RegisterLeaveResult struct {
	Status int `json:"status"`
}

type ChatBroadcast struct {
	UserID   int64  `json:"userId"`
	Message  string `json:"message,omitempty"`
	Emoticon int    `json:"emoticon,omitempty"`
}

// ErrorEvent carries a rejection code for a failed command.
type ErrorEvent struct {
	Cmd     Command `json:"cmd"`
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
}
