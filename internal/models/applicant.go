package models

import "time"

// Applicant is a learner who can receive assignments. GroupTags drive group fan-out.
type Applicant struct {
	ID        string    `db:"id" json:"id" bson:"_id"`
	Name      string    `db:"name" json:"name" bson:"name"`
	Email     string    `db:"email" json:"email" bson:"email"`
	GroupTags []string  `db:"group_tags" json:"groupTags" bson:"group_tags"`
	Subjects  []string  `db:"subjects" json:"subjects" bson:"subjects"`
	CreatedAt time.Time `db:"created_at" json:"createdAt" bson:"created_at"`
}

// HasGroupTag reports whether the applicant carries tag exactly.
func (a *Applicant) HasGroupTag(tag string) bool {
	for _, t := range a.GroupTags {
		if t == tag {
			return true
		}
	}
	return false
}
