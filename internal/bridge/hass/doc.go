// Package hass is the Home Assistant side of the bridge.
//
// It publishes MQTT discovery configs so Home Assistant creates one entity
// per Smarteefi output, subscribes to the resulting command topics, and
// translates in both directions:
//
//   - HA command payloads become vendor cloud API calls (set-status,
//     set-speed, set-rgb-color, set-intensity, cover moves)
//   - vendor status words, whether polled from the cloud or pushed over
//     UDP, become retained JSON state payloads
//
// A refresh loop polls the cloud on a fixed interval, backing off
// exponentially on transport failures. After the configured number of
// consecutive failures every entity is marked unavailable; the next
// successful poll restores them. An authentication failure is terminal for
// the loop: the token must be regenerated in the Smarteefi app, so the
// bridge stops polling and reports a degraded health status instead of
// hammering the cloud.
//
// Commands are serialised per device. Home Assistant can emit bursts
// (brightness slider drags, for example) and the vendor API misbehaves when
// requests for the same output overlap; unrelated devices still proceed in
// parallel.
package hass
