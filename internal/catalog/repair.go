package catalog

import (
	"regexp"
	"strings"
)

// Some catalog rows carry the transmission inside drive_type, for example
// `AWD,"transmission":"8-Speed Automatic"`. The patterns below recover it.
var transmissionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)["']transmission["']\s*:\s*["']([^"']+)["']`),
	regexp.MustCompile(`\\["']transmission\\["']\s*:\s*\\["']([^"']+)\\["']`),
	regexp.MustCompile(`(?i),\s*transmission\s*:\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)transmission\s*:\s*([^,"']+)`),
}

// Removal order matters: the escaped form has to go before the plain
// quoted form can see its inner quotes. The leading comma is optional since
// some rows separate the fragment with a space or carry nothing else.
var transmissionFragments = []*regexp.Regexp{
	regexp.MustCompile(`(?i),?\s*\\["']transmission\\["']\s*:\s*\\["'][^"']+\\["']`),
	regexp.MustCompile(`(?i),?\s*["']transmission["']\s*:\s*["'][^"']+["']`),
	regexp.MustCompile(`(?i),?\s*\btransmission\s*:\s*["'][^"']+["']`),
	regexp.MustCompile(`(?i),?\s*\btransmission["']?\s*:\s*["']?[^,"']+`),
}

// fragmentSeparators are left dangling once a fragment is cut out.
const fragmentSeparators = " \t,;"

// SanitizeString trims s and maps blank values to nil.
func SanitizeString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ExtractTransmission keeps a non-blank transmission as is. Otherwise it
// looks for an embedded transmission in driveType. It never invents a value.
func ExtractTransmission(driveType, transmission *string) *string {
	if t := SanitizeString(transmission); t != nil {
		return t
	}
	if driveType == nil {
		return nil
	}
	for _, re := range transmissionPatterns {
		m := re.FindStringSubmatch(*driveType)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return &v
		}
	}
	return nil
}

// CleanDriveType strips any embedded transmission fragment.
func CleanDriveType(driveType *string) *string {
	if driveType == nil {
		return nil
	}
	cleaned := *driveType
	removed := false
	for _, re := range transmissionFragments {
		if re.MatchString(cleaned) {
			cleaned = re.ReplaceAllString(cleaned, "")
			removed = true
		}
	}
	if removed {
		cleaned = strings.Trim(cleaned, fragmentSeparators)
	}
	return SanitizeString(&cleaned)
}

// HasEmbeddedTransmission reports a drive_type that still needs repair.
func HasEmbeddedTransmission(driveType *string) bool {
	if driveType == nil {
		return false
	}
	cleaned := CleanDriveType(driveType)
	original := SanitizeString(driveType)
	if cleaned == nil || original == nil {
		return cleaned != original
	}
	return *cleaned != *original
}

// RepairRow normalizes every string field and splits the transmission out
// of drive_type. RepairRow(RepairRow(c)) == RepairRow(c).
func RepairRow(c CarCard) CarCard {
	driveRaw := SanitizeString(c.DriveType)
	transRaw := SanitizeString(c.Transmission)

	c.Transmission = ExtractTransmission(driveRaw, transRaw)
	c.DriveType = CleanDriveType(driveRaw)

	c.Make = SanitizeString(c.Make)
	c.Model = SanitizeString(c.Model)
	c.Submodel = SanitizeString(c.Submodel)
	c.Trim = SanitizeString(c.Trim)
	c.Description = SanitizeString(c.Description)
	c.BodyType = SanitizeString(c.BodyType)
	c.EngineType = SanitizeString(c.EngineType)
	c.FuelType = SanitizeString(c.FuelType)
	c.ImageURL = SanitizeString(c.ImageURL)
	return c
}

func RepairRows(rows []CarCard) []CarCard {
	out := make([]CarCard, 0, len(rows))
	for _, r := range rows {
		out = append(out, RepairRow(r))
	}
	return out
}
