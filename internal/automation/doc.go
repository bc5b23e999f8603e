// Package automation runs the fleet's autonomous lighting adjustments.
//
// Every interval the Loop visits lamps that are online and switched on:
//
//   - Circadian: lamps with CircadianEnabled get a warm/cold white balance
//     chosen by the local hour. A change is persisted and sent to the lamp
//     as a direct-settings command.
//   - Adaptive brightness: lamps with AdaptiveBrightnessEnabled and a known
//     ambient light reading get a brightness chosen by lux band. This is
//     bookkeeping only; nothing is sent to the lamp.
//
// Both adjustments are skipped when the change is within a hysteresis
// threshold. The policies are pure functions (CircadianTarget,
// AdaptiveBrightness) so they can be tested without a clock or database.
package automation
