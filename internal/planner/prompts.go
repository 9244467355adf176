package planner

import "fmt"

// assemblyPrompt renders the initial compiler prompt: embedded registry plus
// the user utterance. Structure grounded on planner.py's
// PLANNER_SYSTEM_PROMPT (graph shape, no-hallucination rule, placeholder
// ban, synthesis-node guidance) with the cost-minimization and tone
// commentary dropped — those are prompt-engineering concerns for the
// external collaborator, not part of this runtime's contract.
func assemblyPrompt(registryDoc, utterance string) string {
	return fmt.Sprintf(`You compile a user request into a JSON execution graph. Output JSON only.

Use only tools listed in the registry below; do not invent tools or parameters.
If the request cannot be fulfilled with these tools, return:
{"status": "error", "error": "<reason>"}

Each node:
{
  "id": <int, 0-based, dense>,
  "tool": "<registry name>",
  "function": "<registry function_id>",
  "inputs": {<key>: <value>},
  "depends_on": [<ids>],
  "retry": <int >= 0>,
  "timeout": <seconds > 0>,
  "on_fail": "halt" | "continue",
  "metadata": {"purpose": "<string>"}
}

Do not use template placeholders like {{...}} in inputs. Dependency values flow
through depends_on edges only.

If the request asks for a written answer (summary, comparison, explanation,
report), the final_output_node must be a synthesis tool; chain multiple
synthesis nodes linearly via depends_on.

Output shape:
{"status": "success", "nodes": [...], "final_output_node": <id>}

TOOL REGISTRY:
%s

USER REQUEST:
%s`, registryDoc, utterance)
}

// repairPrompt re-queries the collaborator with the invalid candidate and
// the offending validation error, grounded on planner.py's
// REPAIR_PROMPT_TEMPLATE.
func repairPrompt(registryDoc, utterance, lastOutput, errMsg string) string {
	return fmt.Sprintf(`Your previous plan was invalid.

ERROR:
%s

INVALID PLAN:
%s

TOOL REGISTRY:
%s

USER REQUEST:
%s

Return only the corrected JSON graph.`, errMsg, lastOutput, registryDoc, utterance)
}

// syntaxRepairPrompt is the dedicated syntax-only repair pass, invoked
// specifically when the candidate fails to parse as JSON, grounded on
// planner.py's SYNTAX_REPAIR_PROMPT.
func syntaxRepairPrompt(brokenJSON, parseError string) string {
	return fmt.Sprintf(`Fix only the JSON syntax in the text below. Do not change its content
beyond what is necessary to make it valid JSON. Return only the corrected
JSON object.

BROKEN JSON:
%s

PARSE ERROR:
%s

CORRECTED JSON:`, brokenJSON, parseError)
}
