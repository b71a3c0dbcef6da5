package types

// REST payloads for /rooms.

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type RoomInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NumClients int    `json:"num_clients"`
	CSHolder   string `json:"cs_holder,omitempty"`
}

type HistoryMessage struct {
	Seq  int    `json:"seq"`
	Nick string `json:"nick"`
	Text string `json:"text"`
	At   int64  `json:"at"`
}
