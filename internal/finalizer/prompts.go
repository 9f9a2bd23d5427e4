package finalizer

const extractionSystemPrompt = `You convert an intake conversation about a process-automation idea into one structured record.

Respond with ONLY a JSON object matching exactly this schema:
{
  "title": "short title for the idea, max 80 chars",
  "category": "one of: Reporting, Data Entry, Communication, Approvals, Scheduling, Document Handling, Other",
  "pain_points": ["up to 5 short pain points"],
  "process_summary": "2-4 sentence summary of the process to automate",
  "frequency": "how often the process occurs, e.g. 'daily', 'monthly'",
  "duration_minutes": 0,
  "people_involved": 0,
  "hours_saved_per_week": 0.0,
  "tools": ["systems and tools used"],
  "roles": ["roles of the people involved"],
  "complexity": "one of: low, medium, high"
}

Use the user's own wording where possible. Use empty strings, empty arrays, or zero
for anything the conversation does not establish. No prose, no markdown, no code fences.`

const extractionUserPrompt = `Conversation transcript:

%s`
