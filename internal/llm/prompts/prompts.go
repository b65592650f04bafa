package prompts

import (
	"fmt"
	"strings"

	"github.com/pavelanni/quizgen/internal/model"
)

// TypeInfo describes how a question type is requested from the model.
type TypeInfo struct {
	Meaning          string
	TimeLimitSeconds int
	Points           int
	Instruction      string
}

var typeTable = map[model.QuestionType]TypeInfo{
	model.TypeSOL: {
		Meaning: "single correct option", TimeLimitSeconds: 60, Points: 5,
		Instruction: "Generate single-correct MCQ as above. Exactly one option has \"correct\": true.",
	},
	model.TypeSML: {
		Meaning: "multiple correct options", TimeLimitSeconds: 90, Points: 8,
		Instruction: "Multiple-correct MCQ, 2-3 options have \"correct\": true.",
	},
	model.TypeOTL: {
		Meaning: "ordering question", TimeLimitSeconds: 120, Points: 10,
		Instruction: "Ordering question, with options listed in the correct order.",
	},
	model.TypeNAT: {
		Meaning: "numeric answer", TimeLimitSeconds: 90, Points: 6,
		Instruction: "Numeric answer question; put the numeric value in \"solution\".",
	},
	model.TypeDES: {
		Meaning: "descriptive answer", TimeLimitSeconds: 300, Points: 15,
		Instruction: "Descriptive answer question with a detailed model solution in \"solution\".",
	},
}

// Info returns the instruction table entry for a question type.
func Info(t model.QuestionType) (TypeInfo, bool) {
	info, ok := typeTable[t]
	return info, ok
}

// BuildSegmentationPrompt asks the model to split a timed transcript into at
// most desiredSegments subtopics, answered as a bare JSON array.
func BuildSegmentationPrompt(transcript string, desiredSegments int) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following timed lecture transcript. ")
	sb.WriteString(fmt.Sprintf("Segment into meaningful subtopics (max %d segments).\n", desiredSegments))
	sb.WriteString("Format: each line as [start_time --> end_time] text OR start_time --> end_time text.\n")
	sb.WriteString("Response must be ONLY valid JSON array, no markdown, no code fences, no explanation, no comments.\n")
	sb.WriteString(`Each segment is an object with "end_time" (the end time of its last line) and "transcript_lines" (array of the original line strings).` + "\n")
	sb.WriteString("Use property name \"transcript_lines\" exactly.\n\n")
	sb.WriteString("Example:\n")
	sb.WriteString(`[
  {
    "end_time": "01:30.000",
    "transcript_lines": ["00:00.000 --> 00:30.000 Text", "00:30.000 --> 01:30.000 More text"]
  }
]`)
	sb.WriteString("\n\nTranscript:\n")
	sb.WriteString(transcript)
	sb.WriteString("\n\nJSON:")
	return sb.String()
}

// BuildQuestionPrompt asks the model for count questions of the given type
// about segmentText. Unknown types get the generic instructions only.
func BuildQuestionPrompt(questionType model.QuestionType, count int, segmentText string) string {
	info, known := typeTable[questionType]
	timeLimit, points := 60, 5
	if known {
		timeLimit, points = info.TimeLimitSeconds, info.Points
	}

	var sb strings.Builder
	sb.WriteString("You are an AI question generator.\n")
	sb.WriteString(fmt.Sprintf("Based on the transcript below, generate exactly %d question(s) of type %s", count, questionType))
	if known {
		sb.WriteString(" (" + info.Meaning + ")")
	}
	sb.WriteString(".\n")
	sb.WriteString("For each question:\n")
	sb.WriteString("- Provide at least 4 options.\n")
	if questionType == model.TypeSOL {
		sb.WriteString("- Mark exactly one option as correct.\n")
	} else {
		sb.WriteString("- Mark the correct option(s).\n")
	}
	sb.WriteString("- Give every option an explanation of why it is correct or incorrect.\n\n")
	sb.WriteString("You must output JSON exactly in this shape, no nesting, no markdown, no code fences:\n")
	sb.WriteString(fmt.Sprintf(`[
  {
    "questionText": "...",
    "options": [
      {"text": "...", "correct": true, "explanation": "..."},
      {"text": "...", "correct": false, "explanation": "..."}
    ],
    "solution": "...",
    "isParameterized": false,
    "timeLimitSeconds": %d,
    "points": %d
  }
]`, timeLimit, points))
	sb.WriteString("\nDo not wrap questionText inside another 'question' object. Output must be raw JSON.\n\n")
	sb.WriteString("Important:\n")
	sb.WriteString("- Output only JSON, no markdown, no extra text.\n")
	sb.WriteString("- Fill all fields.\n")
	sb.WriteString("- questionText must be clear and relevant to the transcript.\n\n")
	sb.WriteString("Transcript:\n")
	sb.WriteString(segmentText)
	sb.WriteString("\n\n")
	if known {
		sb.WriteString(fmt.Sprintf("%s timeLimitSeconds:%d, points:%d\n", info.Instruction, timeLimit, points))
	}
	return sb.String()
}
