package jobs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// errorCodes maps numeric service failure codes to readable messages.
var errorCodes = map[int]string{
	101:  "Not enough credits",
	201:  "Error downloading the video or DM asset",
	202:  "Error converting the video",
	503:  "Error processing the parameters",
	504:  "Error loading the character assets",
	505:  "Physics Filter is incompatible with the custom characters",
	506:  "Error creating the pose estimation",
	507:  "Error while processing the body tracking",
	508:  "Input video or image doesn't meet the requirements to generate animations of good quality",
	509:  "Error loading the configurations",
	510:  "Error open internal files",
	511:  "Processing interrupted",
	513:  "Failed to detect character in the video",
	599:  "Body tracking timeout",
	701:  "Error processing the face tracking",
	799:  "Face tracking timeout",
	901:  "Error loading the mesh of the custom character",
	902:  "Error loading the BVH custom character",
	903:  "Error copying animations onto the custom character",
	904:  "Error exporting animations for the custom character",
	905:  "Custom character doesn't include skinned mesh information",
	906:  "More than half of the required blendshapes are missing",
	907:  "Error loading facial definition for the custom character",
	908:  "Error loading facial tracking data",
	909:  "Error loading the metadata of the custom character",
	999:  "Animation baking timeout",
	1301: "Error creating the hand estimation",
	1302: "Error creating the hand estimation",
	1303: "Error creating the hand estimation",
	1304: "Error opening the video",
	1305: "Error parsing video path",
	1306: "Error loading internal files",
	1307: "Error processing hand tracking",
	1308: "Error processing the video",
	1399: "Hand tracking timeout",
}

const unknownError = "Unknown error"

// ErrorCodeMessage returns the message registered for code.
func ErrorCodeMessage(code int) (string, bool) {
	msg, ok := errorCodes[code]
	return msg, ok
}

// DescribeErrorCode renders one code, or a list of codes, as
// "Error 101: Not enough credits". Unknown values are returned as text.
func DescribeErrorCode(code any) string {
	if list, ok := code.([]any); ok {
		if len(list) == 0 {
			return unknownError
		}
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if n, ok := parseErrorCode(item); ok {
				if msg, known := errorCodes[n]; known {
					parts = append(parts, fmt.Sprintf("Error %d: %s", n, msg))
					continue
				}
			}
			parts = append(parts, fmt.Sprintf("Error %s", valueText(item)))
		}
		return strings.Join(parts, "; ")
	}
	if n, ok := parseErrorCode(code); ok {
		if msg, known := errorCodes[n]; known {
			return fmt.Sprintf("Error %d: %s", n, msg)
		}
	}
	if code == nil {
		return unknownError
	}
	return valueText(code)
}

// FormatErrorMessage renders the exc_message and exc_type fields of a failed
// job. excMessage may be a string, a number or a list of codes.
func FormatErrorMessage(excMessage any, excType string) string {
	var message string
	switch v := excMessage.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, DescribeErrorCode(item))
		}
		message = strings.Join(parts, "; ")
	case nil:
		message = unknownError
	default:
		text := valueText(v)
		switch {
		case text == "":
			message = unknownError
		case isKnownCode(v):
			message = DescribeErrorCode(v)
		default:
			message = text
		}
	}
	if message == "" {
		message = unknownError
	}
	if excType = strings.TrimSpace(excType); excType != "" {
		message = excType + ": " + message
	}
	return message
}

// NewJobError builds the JobError for a failed status report.
func NewJobError(excMessage any, excType string) *JobError {
	code := strings.TrimSpace(excType)
	if code == "" {
		if n, ok := firstCode(excMessage); ok {
			code = strconv.Itoa(n)
		}
	}
	if code == "" {
		code = string(StatusFailure)
	}
	return &JobError{Code: code, Message: FormatErrorMessage(excMessage, excType)}
}

func firstCode(v any) (int, bool) {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if n, ok := parseErrorCode(item); ok {
				return n, true
			}
		}
		return 0, false
	}
	return parseErrorCode(v)
}

func isKnownCode(v any) bool {
	n, ok := parseErrorCode(v)
	if !ok {
		return false
	}
	_, known := errorCodes[n]
	return known
}

func parseErrorCode(v any) (int, bool) {
	switch c := v.(type) {
	case int:
		return c, c != 0
	case int64:
		return int(c), c != 0
	case float64:
		if c == math.Trunc(c) && c != 0 {
			return int(c), true
		}
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(c))
		if err == nil && n != 0 {
			return n, true
		}
	}
	return 0, false
}

func valueText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		if c == math.Trunc(c) {
			return strconv.FormatInt(int64(c), 10)
		}
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}
