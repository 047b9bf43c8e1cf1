package opcodes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/opcodes"
)

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "BINARY_ADD", opcodes.OP_BINARY_ADD.String())
	require.Equal(t, "RETURN_VALUE", opcodes.OP_RETURN_VALUE.String())
	require.Equal(t, "UNKNOWN", opcodes.Opcode(255).String())
}

func TestInstructionString(t *testing.T) {
	i := opcodes.Instruction{Op: opcodes.OP_LOAD_CONST, A: 3, B: 0}
	require.Equal(t, "LOAD_CONST 3 0", i.String())
}

// TestFormatValueSpecFlagIsHighBit checks §4.F FORMAT_VALUE's encoding: the
// format-spec-present flag must not collide with any of the four
// conversion flag values it is OR'd alongside.
func TestFormatValueSpecFlagIsHighBit(t *testing.T) {
	for _, conv := range []byte{opcodes.ConvNone, opcodes.ConvStr, opcodes.ConvRepr, opcodes.ConvAscii} {
		require.Zero(t, conv&opcodes.HasFormatSpecFlag)
	}
}
