package agent

import (
	"fmt"
	"strings"

	"github.com/skillquest/server/quest"
)

func schedulePrompt(profile quest.StudentProfile, course quest.CourseContext) string {
	var b strings.Builder
	b.WriteString("You are a curriculum planner for a personalized education platform.\n")
	fmt.Fprintf(&b, "Plan a %d-week schedule of weekly homework quests for this student.\n\n", course.Weeks)
	fmt.Fprintf(&b, "Student: %s (grade level: %s). Interests: %s.\n",
		profile.Name, profile.GradeLevel, profile.Interests)
	fmt.Fprintf(&b, "Course: %s. %s\n\n", course.Subject, course.Description)
	b.WriteString("Tailor quest names to the student's interests. Each week covers one skill cluster,\n")
	b.WriteString("building on previous weeks.\n\n")
	b.WriteString("Reply with ONLY a JSON array, one object per week:\n")
	b.WriteString(`[{"name": "...", "description": "...", "skills": "comma, separated", "week": 1}]` + "\n")
	return b.String()
}

func homeworkPrompt(stub quest.QuestStub) string {
	var b strings.Builder
	b.WriteString("You are a homework author for a personalized education platform.\n")
	fmt.Fprintf(&b, "Write the homework for week %d quest %q (subject: %s, grade level: %s, skills: %s).\n\n",
		stub.Week, stub.Name, stub.Subject, stub.GradeLevel, stub.Skills)
	b.WriteString("Produce student-facing instructions and a grading rubric. The rubric maps each\n")
	b.WriteString("criterion name to six level descriptions keyed \"0\" through \"5\".\n\n")
	b.WriteString("Reply with ONLY a JSON object:\n")
	b.WriteString(`{"instructions": "...", "rubric": {"criterion name": {"0": "...", "1": "...", "2": "...", "3": "...", "4": "...", "5": "..."}}}` + "\n")
	return b.String()
}

func gradePrompt(req quest.GradeRequest) string {
	var b strings.Builder
	b.WriteString("You are grading one student homework submission against a rubric.\n\n")
	fmt.Fprintf(&b, "Assignment instructions:\n%s\n\n", req.Instructions)
	b.WriteString("Rubric (score each criterion 0-5 using its level descriptions):\n")
	for criterion, levels := range req.Rubric {
		fmt.Fprintf(&b, "- %s:\n", criterion)
		for lvl := 0; lvl <= 5; lvl++ {
			if desc, ok := levels[fmt.Sprintf("%d", lvl)]; ok {
				fmt.Fprintf(&b, "    %d: %s\n", lvl, desc)
			}
		}
	}
	fmt.Fprintf(&b, "\nSubmission:\n%s\n\n", req.Submission)
	b.WriteString("Reply with ONLY a JSON object:\n")
	b.WriteString(`{"detailed_grade": {"criterion name": {"score": 0, "comment": "..."}}, "overall_score": "letter grade", "feedback": "student-facing feedback"}` + "\n")
	return b.String()
}
