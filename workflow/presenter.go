package workflow

// View is what the screen shows for a State.
type View struct {
	SpinnerVisible bool   `json:"spinner_visible"`
	StatusText     string `json:"status_text,omitempty"`
	ResultVisible  bool   `json:"result_visible"`
	ResultURL      string `json:"result_url,omitempty"`
	ButtonLabel    string `json:"button_label"`
	ButtonDisabled bool   `json:"button_disabled"`
	SubjectImage   string `json:"subject_image,omitempty"`
	GarmentImage   string `json:"garment_image,omitempty"`
	Alert          string `json:"alert,omitempty"`
	Status         Status `json:"status"`
	Attempt        int    `json:"attempt"`
}

const (
	ButtonTryOn      = "Try On"
	ButtonProcessing = "Processing..."
)

// Render maps a State to its View.
func Render(s State) View {
	v := View{
		ButtonLabel: ButtonTryOn,
		Alert:       s.Alert,
		Status:      s.Status,
		Attempt:     s.Attempt,
	}
	if s.Loading {
		v.SpinnerVisible = true
		v.StatusText = s.Message
		v.ButtonLabel = ButtonProcessing
		v.ButtonDisabled = true
	}
	if s.Result != "" {
		v.ResultVisible = true
		v.ResultURL = s.Result
	}
	if s.Subject != nil {
		v.SubjectImage = s.Subject.Reference
	}
	if s.Garment != nil {
		v.GarmentImage = s.Garment.Reference
	}
	return v
}
