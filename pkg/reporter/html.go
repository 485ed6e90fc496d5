package reporter

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>GPU Fleet Report - {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #333;
            padding: 20px;
            line-height: 1.6;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1);
            overflow: hidden;
        }
        .header {
            background: linear-gradient(135deg, #0f9d58 0%, #0b6e3f 100%);
            color: white;
            padding: 50px 40px;
        }
        .header h1 {
            font-size: 2.4em;
            margin-bottom: 15px;
        }
        .summary {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 25px;
            padding: 40px;
            background: linear-gradient(to bottom, #f8f9fa 0%, #fff 100%);
        }
        .summary-card {
            background: white;
            padding: 25px;
            border-radius: 12px;
            box-shadow: 0 2px 6px rgba(0, 0, 0, 0.08);
        }
        .summary-card h3 {
            font-size: 0.85em;
            color: #5f6368;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        .summary-card .value {
            font-size: 2em;
            font-weight: 700;
        }
        .section {
            padding: 40px;
        }
        .section h2 {
            margin-bottom: 20px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            padding: 12px;
            border-bottom: 1px solid #e8eaed;
            text-align: left;
        }
        th {
            background: #f8f9fa;
            font-size: 0.8em;
            text-transform: uppercase;
            color: #5f6368;
        }
        .status-badge {
            padding: 6px 12px;
            border-radius: 6px;
            font-size: 0.75em;
            font-weight: 700;
            text-transform: uppercase;
            display: inline-block;
        }
        .status-active {
            background: #fce8e6;
            color: #d93025;
        }
        .status-optimizing {
            background: #e6f4ea;
            color: #1e8e3e;
        }
        .status-idle {
            background: #f1f3f4;
            color: #5f6368;
        }
        .spike {
            color: #f9ab00;
            font-weight: 700;
        }
        .footer {
            background: #202124;
            color: #9aa0a6;
            padding: 30px;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>GPU Fleet Report</h1>
            <p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}}</p>
            <p><strong>Spike:</strong> {{spike .}}</p>
        </div>

        <div class="summary">
            <div class="summary-card">
                <h3>Power Draw</h3>
                <div class="value">{{printf "%.2f" .Stats.PowerDrawMW}} MW</div>
            </div>
            <div class="summary-card">
                <h3>Energy Savings</h3>
                <div class="value">{{printf "%.1f" .Stats.EnergySavingsPct}}%</div>
            </div>
            <div class="summary-card">
                <h3>Cooling PUE</h3>
                <div class="value">{{printf "%.2f" .Stats.CoolingPUE}}</div>
            </div>
            <div class="summary-card">
                <h3>Nodes Online</h3>
                <div class="value">{{.OnlineNodes}}/{{.TotalNodes}}</div>
            </div>
        </div>

        {{if .Regions}}
        <div class="section">
            <h2>By Region</h2>
            <table>
                <thead>
                    <tr><th>Region</th><th>Sites</th><th>Clusters</th><th>GPU Load</th><th>Cooling</th><th>Avg Power</th><th>Spiking</th></tr>
                </thead>
                <tbody>
                    {{range .Regions}}
                    <tr>
                        <td><strong>{{.Region}}</strong></td>
                        <td>{{join .Sites}}</td>
                        <td>{{.ClusterCount}}</td>
                        <td>{{printf "%.1f" .AvgGPULoad}}%</td>
                        <td>{{printf "%.1f" .AvgCooling}}%</td>
                        <td>{{printf "%.1f" .AvgPowerKW}} kW</td>
                        <td>{{.SpikeClusters}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Clusters</h2>
            <table>
                <thead>
                    <tr><th>Cluster</th><th>Site</th><th>Status</th><th>GPU Load</th><th>Cooling</th><th>Temperature</th><th>Power</th><th>Nodes</th></tr>
                </thead>
                <tbody>
                    {{range .Clusters}}
                    <tr>
                        <td><strong>{{.Name}}</strong>{{if .SpikeActive}} <span class="spike">SPIKE</span>{{end}}</td>
                        <td>{{.Site}}</td>
                        <td><span class="status-badge status-{{.Status | lower}}">{{.Status}}</span></td>
                        <td>{{printf "%.1f" .AvgGPULoad}}%</td>
                        <td>{{printf "%.1f" .AvgCooling}}%</td>
                        <td>{{printf "%.1f" .AvgTemperatureC}} &deg;C</td>
                        <td>{{printf "%.1f" .PowerKW}} kW</td>
                        <td>{{.ActiveNodes}}/{{.Nodes}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        <div class="footer">
            <p>Generated by <strong>gpu-fleet-sim</strong></p>
        </div>
    </div>
</body>
</html>
`

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"lower": func(s interface{}) string {
			return strings.ToLower(fmt.Sprintf("%v", s))
		},
		"join":  func(s []string) string { return strings.Join(s, ", ") },
		"spike": spikeSummary,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}
