package statshandler

type HealthResponse struct {
	Status  string `json:"status"  example:"healthy"`
	Message string `json:"message" example:"Server is running"`
} // @name HealthResponse

type StatsResponse struct {
	ActiveConnections int      `json:"active_connections" example:"2"`
	ActiveRooms       int      `json:"active_rooms"       example:"1"`
	Rooms             []string `json:"rooms"`
	Users             []string `json:"users"`
} // @name StatsResponse
