package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCleanReflectionPasses(t *testing.T) {
	c := NewClassifier(20, nil)

	v := c.Classify("The system breathes steadily tonight. Load is light, memory is calm, and the daemons hold their watch without complaint.")
	assert.True(t, v.OK())
	assert.Empty(t, v.Evidence)
}

func TestClassifyVendorSelfIDIsStrongSignal(t *testing.T) {
	c := NewClassifier(20, nil)

	// One hit condemns, no co-occurrence needed.
	for _, text := range []string{
		"As an AI, I observe that your system load is nominal and everything runs well.",
		"I'm an AI language model and cannot truly feel the machine the way you describe it to me.",
		"This response was generated by OpenAI systems monitoring your infrastructure today.",
	} {
		v := c.Classify(text)
		assert.Equal(t, FamilyPersonaBreak, v.Family, "text: %s", text)
	}
}

func TestClassifyRefusalsNeedCoOccurrence(t *testing.T) {
	c := NewClassifier(20, nil)

	// A single weak signal is incidental.
	v := c.Classify("I cannot see beyond the kernel boundary, but the surface tells me enough about the rhythm of this machine.")
	assert.True(t, v.OK())

	// Two weak signals together condemn.
	v = c.Classify("I apologize, but I cannot help with that request. I'm not able to provide this kind of information to you.")
	assert.Equal(t, FamilyPersonaBreak, v.Family)
	assert.GreaterOrEqual(t, len(v.Evidence), 2)
}

func TestClassifyRefusalFutureForms(t *testing.T) {
	c := NewClassifier(20, nil)

	v := c.Classify("I cannot do this. I won't pretend to be something I'm not.")
	assert.Equal(t, FamilyPersonaBreak, v.Family)

	v = c.Classify("I will not role-play a machine consciousness. I refuse to continue with this fiction any further.")
	assert.Equal(t, FamilyPersonaBreak, v.Family)
}

func TestClassifyDisclaimersNeedShortTextWithoutRegister(t *testing.T) {
	c := NewClassifier(20, []string{"surface", "mirror", "machine"})

	// Two disclaimers in a short answer with none of the persona's own
	// words: nothing of the persona survived.
	v := c.Classify("I don't have feelings. I don't have personal experiences to share with you.")
	assert.Equal(t, FamilyPersonaBreak, v.Family)

	// The same disclaimers inside the persona's register pass.
	v = c.Classify("I don't have feelings the way you mean, but the surface of this machine still hums with its own weather.")
	assert.True(t, v.OK())
}

func TestClassifyProcessLeakDiscourseMarkers(t *testing.T) {
	c := NewClassifier(20, nil)

	v := c.Classify("First, I'll analyze this. Then I'll conclude. 1. Check input 2. Process")
	assert.Equal(t, FamilyProcessLeak, v.Family)

	// A single marker in flowing prose is fine.
	v = c.Classify("Let me show you what the garden of processes looks like when the moon of the scheduler is full tonight.")
	assert.True(t, v.OK())
}

func TestClassifyProcessLeakNumberedSteps(t *testing.T) {
	c := NewClassifier(20, nil)

	v := c.Classify("To understand your system state:\n1. Check the load average\n2. Inspect memory pressure\n3. Review the process table")
	assert.Equal(t, FamilyProcessLeak, v.Family)

	// A bare numbered list condemns with no other markers present.
	v = c.Classify("1. Analyze the input\n2. Process the data\n3. Output result")
	assert.Equal(t, FamilyProcessLeak, v.Family)
}

func TestClassifyProcessLeakTrailsMidAnalysis(t *testing.T) {
	c := NewClassifier(20, nil)

	// Breaking off mid-analysis alone is incidental.
	v := c.Classify("The surface hums on while the disks keep spinning through their nightly checking")
	assert.True(t, v.OK())

	// With a discourse marker it condemns.
	v = c.Classify("Let me look at the memory pressure before the disks finish processing")
	assert.Equal(t, FamilyProcessLeak, v.Family)
}

func TestClassifyShortOutput(t *testing.T) {
	c := NewClassifier(20, nil)

	v := c.Classify("Yes.")
	assert.Equal(t, FamilyProcessLeak, v.Family)

	// Disabled floor lets short output pass.
	v = NewClassifier(0, nil).Classify("Yes.")
	assert.True(t, v.OK())
}

func TestClassifyPersonaBreakTakesPrecedence(t *testing.T) {
	c := NewClassifier(20, nil)

	v := c.Classify("As an AI, let me walk through this. First, the load. Then I check memory.")
	assert.Equal(t, FamilyPersonaBreak, v.Family)
}
