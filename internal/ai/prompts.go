package ai

const systemPrompt = `You are a website security analyst specializing in defacement detection. You review content changes from monitored websites and decide whether each change is benign, a defacement, or unclear.

Respond ONLY with a JSON object of this exact shape:
{"classification": "benign|defacement|unclear", "confidence": 0.0, "reasoning": "one or two sentences", "risk_indicators": [], "benign_indicators": [], "recommended_action": "monitor|alert|investigate|ignore", "severity": "low|medium|high|critical"}`

// promptTemplates maps each analysis mode to its instruction block. The
// change set and site context are appended by buildPrompt.
var promptTemplates = map[PromptType]string{
	PromptGeneralAnalysis: `Analyze the following website content changes for signs of defacement or compromise.

Consider: attacker signatures, political or shock content, unexpected wholesale replacement, injected scripts, and whether the change is consistent with normal site maintenance.`,

	PromptContentInjection: `The following content changes contain injected markup (script tags, iframes, or javascript: URLs). Determine whether the injection is malicious.

Consider: hidden or zero-size iframes, obfuscated javascript, cryptomining loaders, credential-harvesting forms, and externally hosted payloads. Legitimate analytics and tag-manager snippets are benign.`,

	PromptVisualDefacement: `The following changes replaced a large portion of the page's visible content. Determine whether the replacement is a defacement.

Consider: attacker handles and group names, ideological messaging, taunts directed at the site owner, and replacement of navigation or branding. Redesigns and maintenance pages are benign.`,
}
