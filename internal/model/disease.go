package model

// Disease is the closed set of classes the leaf classifier emits.
// The numeric value is the index into the model's output vector.
type Disease int

const (
	EarlyBlight Disease = iota
	LateBlight
	Healthy
)

// Diseases lists every class in model output order.
var Diseases = [...]Disease{EarlyBlight, LateBlight, Healthy}

const NoRemedy = "No remedy available."

const (
	earlyBlightRemedy = `- Remove and destroy infected leaves.
- Apply fungicides like chlorothalonil or mancozeb.
- Practice crop rotation and avoid overhead watering.`

	lateBlightRemedy = `- Remove infected plants immediately.
- Use fungicides containing copper or metalaxyl.
- Ensure proper drainage and avoid water accumulation.`

	healthyRemedy = "No disease detected. Keep monitoring and ensure proper crop care."
)

// DiseaseAt maps an output index to its class.
func DiseaseAt(index int) (Disease, bool) {
	if index < 0 || index >= len(Diseases) {
		return 0, false
	}
	return Diseases[index], true
}

// ParseDisease resolves a label such as "Late Blight".
func ParseDisease(label string) (Disease, bool) {
	for _, d := range Diseases {
		if d.Label() == label {
			return d, true
		}
	}
	return 0, false
}

func (d Disease) Label() string {
	switch d {
	case EarlyBlight:
		return "Early Blight"
	case LateBlight:
		return "Late Blight"
	case Healthy:
		return "Healthy"
	default:
		return "Unknown"
	}
}

func (d Disease) String() string {
	return d.Label()
}

// Remedy returns the advisory text for d. Unknown values get NoRemedy.
func Remedy(d Disease) string {
	switch d {
	case EarlyBlight:
		return earlyBlightRemedy
	case LateBlight:
		return lateBlightRemedy
	case Healthy:
		return healthyRemedy
	default:
		return NoRemedy
	}
}

// LookupRemedy is Remedy keyed by label; it never fails.
func LookupRemedy(label string) string {
	d, ok := ParseDisease(label)
	if !ok {
		return NoRemedy
	}
	return Remedy(d)
}
