package models

const (
	MinRating = 1
	MaxRating = 5
)

// ValidRating reports whether r is within the accepted star range.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// ApplyRating folds one rating into a running average without the raw history.
func ApplyRating(average float64, count int, rating int) (float64, int) {
	if count <= 0 {
		return float64(rating), 1
	}
	newAverage := (average*float64(count) + float64(rating)) / float64(count+1)
	return newAverage, count + 1
}
