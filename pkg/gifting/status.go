package gifting

import "strings"

// DeriveStatus maps a request's determinants to its lifecycle status.
func DeriveStatus(hasPlots bool, noOfCards int, assigned int, cardsGenerated bool) RequestStatus {
	switch {
	case !hasPlots:
		return StatusPendingPlotSelection
	case assigned < noOfCards:
		return StatusPendingAssignment
	case !cardsGenerated:
		return StatusPendingGiftCards
	default:
		return StatusCompleted
	}
}

// ValidateRequest computes the non-blocking annotations for a request and its mappings.
func ValidateRequest(request GiftCardRequest, recipients []GiftRequestUser) []ValidationCode {
	codes := make([]ValidationCode, 0, 2)
	if request.RequestType.RequiresLogo() && strings.TrimSpace(request.LogoURL) == "" {
		codes = append(codes, ValidationMissingLogo)
	}
	if request.Assigned > 0 && !recipientsComplete(request, recipients) {
		codes = append(codes, ValidationMissingUserDetails)
	}
	return codes
}

func recipientsComplete(request GiftCardRequest, recipients []GiftRequestUser) bool {
	assignedMappings := 0
	for _, recipient := range recipients {
		if !recipient.IsAssigned() {
			continue
		}
		assignedMappings++
		if !recipient.IsComplete() {
			return false
		}
	}
	return assignedMappings >= request.Assigned
}

func newRequestView(request GiftCardRequest, recipients []GiftRequestUser) RequestView {
	return RequestView{
		Request:          request,
		Status:           request.Status(),
		ValidationErrors: ValidateRequest(request, recipients),
	}
}
