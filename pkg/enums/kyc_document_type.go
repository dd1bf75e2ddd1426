package enums

import "fmt"

// KYCDocumentType is the identity document submitted for review.
type KYCDocumentType string

const (
	KYCDocumentIDCard         KYCDocumentType = "id_card"
	KYCDocumentPassport       KYCDocumentType = "passport"
	KYCDocumentDrivingLicense KYCDocumentType = "driving_license"
)

var validKYCDocumentTypes = []KYCDocumentType{
	KYCDocumentIDCard,
	KYCDocumentPassport,
	KYCDocumentDrivingLicense,
}

// IsValid reports whether the value is a known KYCDocumentType.
func (k KYCDocumentType) IsValid() bool {
	for _, candidate := range validKYCDocumentTypes {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseKYCDocumentType converts raw input into a KYCDocumentType.
func ParseKYCDocumentType(value string) (KYCDocumentType, error) {
	for _, candidate := range validKYCDocumentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document type %q", value)
}
