package scoring

import "github.com/shopspring/decimal"

// DayKind classifies one work day for performance purposes.
type DayKind string

const (
	DayGreen       DayKind = "GREEN"
	DayYellow      DayKind = "YELLOW"
	DayAbsent      DayKind = "ABSENT"
	DayExcused     DayKind = "EXCUSED"
	DayNotRequired DayKind = "NOT_REQUIRED"
)

// Attendance weights (policy constants).
const (
	WeightGreen  = 100
	WeightYellow = 75
	WeightAbsent = 0
)

// Weight returns the weight of a day and whether it counts toward the
// denominator. EXCUSED and NOT_REQUIRED days do not count.
func (k DayKind) Weight() (weight int, counted bool) {
	switch k {
	case DayGreen:
		return WeightGreen, true
	case DayYellow:
		return WeightYellow, true
	case DayAbsent:
		return WeightAbsent, true
	default:
		return 0, false
	}
}

// DayKindFor maps a punctuality status onto a day kind.
func DayKindFor(p Status) DayKind {
	if p == Green {
		return DayGreen
	}
	return DayYellow
}

// Grade is a letter grade.
type Grade string

const (
	GradeA    Grade = "A"
	GradeB    Grade = "B"
	GradeC    Grade = "C"
	GradeD    Grade = "D"
	GradeF    Grade = "F"
	GradeNone Grade = "N/A"
)

// LetterGrade maps a 0..100 score: >=90 A, >=80 B, >=70 C, >=60 D, else F.
func LetterGrade(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Breakdown tallies day kinds over a period.
type Breakdown struct {
	Green       int `json:"green"`
	Yellow      int `json:"yellow"`
	Absent      int `json:"absent"`
	Excused     int `json:"excused"`
	NotRequired int `json:"not_required"`
}

func (b *Breakdown) Add(k DayKind) {
	switch k {
	case DayGreen:
		b.Green++
	case DayYellow:
		b.Yellow++
	case DayAbsent:
		b.Absent++
	case DayExcused:
		b.Excused++
	default:
		b.NotRequired++
	}
}

// Counted is the denominator: every classified day except EXCUSED.
func (b Breakdown) Counted() int { return b.Green + b.Yellow + b.Absent }

// WeightSum is the numerator.
func (b Breakdown) WeightSum() int {
	return b.Green*WeightGreen + b.Yellow*WeightYellow + b.Absent*WeightAbsent
}

// Merge adds other into b.
func (b *Breakdown) Merge(other Breakdown) {
	b.Green += other.Green
	b.Yellow += other.Yellow
	b.Absent += other.Absent
	b.Excused += other.Excused
	b.NotRequired += other.NotRequired
}

// Score is round(sum(weights) / countedDays). ok is false when nothing counts.
func (b Breakdown) Score() (score int, ok bool) {
	counted := b.Counted()
	if counted == 0 {
		return 0, false
	}
	return RoundRatio(b.WeightSum(), counted), true
}

// Grade is the letter grade of Score, or GradeNone.
func (b Breakdown) Grade() Grade {
	score, ok := b.Score()
	if !ok {
		return GradeNone
	}
	return LetterGrade(score)
}

// RoundRatio returns round(num/den), half away from zero. den must be > 0.
func RoundRatio(num, den int) int {
	return int(decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den))).Round(0).IntPart())
}

var (
	readinessWeight  = decimal.RequireFromString("0.6")
	complianceWeight = decimal.RequireFromString("0.4")
)

// TeamScore blends average readiness and attendance compliance as
// round(readiness*0.6 + compliance*0.4).
func TeamScore(avgReadiness, compliance decimal.Decimal) int {
	return int(avgReadiness.Mul(readinessWeight).Add(compliance.Mul(complianceWeight)).Round(0).IntPart())
}
