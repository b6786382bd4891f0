package server

// UploadResponse is returned for an accepted dataset upload.
type UploadResponse struct {
	JobID   string `json:"job_id"`
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Status  string `json:"status"`
}

// ProcessResponse is returned when a job is accepted for processing.
type ProcessResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// MessageResponse represents a generic message payload used for success responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents a generic error payload used for error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
