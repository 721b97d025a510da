package llm

import "github.com/santhosh-tekuri/jsonschema/v5"

// Shape checks only. Business rules live in jdschema and blueprint.

var dissectionSchema = jsonschema.MustCompileString("dissection.json", `{
  "type": "object",
  "required": ["function", "seniority", "core_competencies"],
  "properties": {
    "function": {"type": "string"},
    "role_family": {"type": ["string", "null"]},
    "seniority": {"type": "string"},
    "decision_context": {"type": ["string", "null"]},
    "core_competencies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "weight"],
        "properties": {
          "name": {"type": "string"},
          "weight": {"type": "number"}
        }
      }
    },
    "tools": {"type": ["array", "null"], "items": {"type": "string"}},
    "constraints": {"type": ["array", "null"], "items": {"type": "string"}},
    "confidence_score": {"type": "number"}
  }
}`)

var generationSchema = jsonschema.MustCompileString("generation.json", `{
  "type": "object",
  "required": ["stages"],
  "properties": {
    "assessment_meta": {
      "type": "object",
      "properties": {
        "duration_seconds": {"type": "integer"}
      }
    },
    "stages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["stage_index", "questions"],
        "properties": {
          "stage_index": {"type": "integer"},
          "questions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["question_type", "prompt_text"],
              "properties": {
                "question_type": {"type": "string"},
                "prompt_text": {"type": "string"},
                "options": {
                  "type": ["array", "null"],
                  "items": {
                    "type": "object",
                    "required": ["id", "label"],
                    "properties": {
                      "id": {"type": "string"},
                      "label": {"type": "string"},
                      "is_correct": {"type": "boolean"}
                    }
                  }
                },
                "char_limit": {"type": ["integer", "null"]},
                "scoring_hint": {"type": ["string", "null"]},
                "internal_intent": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`)

var scoringSchema = jsonschema.MustCompileString("scoring.json", `{
  "type": "object",
  "required": ["stages"],
  "properties": {
    "stages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["stage_index", "score"],
        "properties": {
          "stage_index": {"type": "integer"},
          "score": {"type": "number"},
          "feedback": {"type": ["string", "null"]}
        }
      }
    },
    "explanation": {"type": ["string", "null"]}
  }
}`)
