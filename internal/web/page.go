package web

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Excel Chatbot</title>
<style>
body { font-family: sans-serif; max-width: 760px; margin: 2rem auto; color: #1f2937; }
form { margin: 1rem 0; }
input[type=text] { width: 70%; padding: .4rem; }
.success { color: #047857; }
.error { color: #b91c1c; }
.answer { background: #f3f4f6; padding: .75rem 1rem; border-radius: 6px; }
.muted { color: #6b7280; font-size: .9rem; }
</style>
</head>
<body>
<h1>Excel Chatbot</h1>
<p class="muted">Session: {{.State}}{{if .Source}} &middot; {{.Source}} ({{.Chunks}} chunks){{end}}</p>

<form action="/upload" method="post" enctype="multipart/form-data">
  <label>Upload an Excel file <input type="file" name="file" accept=".xlsx,.xlsm"></label>
  <button type="submit">Upload</button>
</form>

<form action="/ask" method="post">
  <label>Ask a question about the Excel file:<br>
  <input type="text" name="question" value="{{.Question}}"></label>
  <button type="submit">Submit</button>
</form>

<form action="/clear" method="post">
  <button type="submit">Clear</button>
</form>

{{if .Success}}<p class="success">{{.Success}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Answer}}<div class="answer">{{.Answer}}</div>{{end}}
{{if .Sources}}<p class="muted">Sources:</p><ul class="muted">{{range .Sources}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body>
</html>
`
