package statecontext

const stateOfRunUpdatePrompt = `Current state of run:
%s

Handoff context:
%s

Latest agent message:
%s

Rewrite the state of run to reflect what has been accomplished and what should happen next. Respond with only the updated text.`

const toolCallUpdatingPrompt = `Existing verified facts:
%s

New tool execution results:
%s

Respond with only the new facts this result establishes, to be appended to the whiteboard above. Do not repeat existing facts.`

const handoffContextUpdatingPrompt = `Current state of run:
%s

Current handoff context:
%s

New user message:
%s

Rewrite the handoff context to reflect the user's routing preferences. Respond with only the updated text.`

const handoffIntentPrompt = `Message:
%s

Does this message express an explicit instruction about which agent should handle the conversation next, or a preference about how agent handoff should work? Respond with exactly "yes" or "no".`
