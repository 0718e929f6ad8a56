package model

// SubmitAnswerRequest is the payload for saving one answer.
type SubmitAnswerRequest struct {
	Content  string `json:"content" binding:"max=20000"`
	Autosave bool   `json:"autosave"`
}

// SubmitAttemptRequest is the payload for the final submission.
// Keys are question IDs.
type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers" binding:"omitempty,dive,keys,uuid,endkeys,max=20000"`
}

// WebcamStatusRequest reports whether the camera could be opened.
type WebcamStatusRequest struct {
	Enabled *bool  `json:"enabled" binding:"required"`
	Message string `json:"message" binding:"max=255"`
}

// WebcamConsentRequest records the student's consent decision.
type WebcamConsentRequest struct {
	Consent *bool `json:"consent" binding:"required"`
}

// WebcamFrameRequest carries one captured frame as a data URL.
type WebcamFrameRequest struct {
	ImageData string `json:"image_data" binding:"required,frame_datauri"`
}
